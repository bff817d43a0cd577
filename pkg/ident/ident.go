// Package ident allocates unique identifiers for core entities.
//
// Ids combine a monotonic wall-clock millisecond component with a random
// 48-bit suffix, e.g. "session-1756200000000-9f3ac81b20de". They are unique
// within a process; no ordering is guaranteed across processes.
package ident

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names the entity class an id is allocated for.
type Kind string

// Identifier kinds.
const (
	KindSession    Kind = "session"
	KindMessage    Kind = "msg"
	KindAgent      Kind = "agent"
	KindEvaluation Kind = "eval"
)

var (
	mu     sync.Mutex
	lastMS int64
)

// New allocates a fresh id for the given kind.
func New(kind Kind) string {
	mu.Lock()
	ms := time.Now().UnixMilli()
	// Wall clock may step backwards (NTP); never let the monotonic
	// component regress within the process.
	if ms <= lastMS {
		ms = lastMS + 1
	}
	lastMS = ms
	mu.Unlock()

	u := uuid.New()
	return fmt.Sprintf("%s-%d-%s", kind, ms, hex.EncodeToString(u[:6]))
}
