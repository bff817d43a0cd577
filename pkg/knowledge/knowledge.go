// Package knowledge implements the tier-gated knowledge base. Entries carry
// an access tier; readers see only entries at or below their own tier, and
// edit/approve rights derive from the reader's tier, not per-entry grants.
package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ocintel/dispatch/pkg/models"
	"github.com/ocintel/dispatch/pkg/services"
)

// Tier thresholds for derived permissions.
const (
	editTier    = 3
	approveTier = 4
)

// Registry is the in-memory knowledge catalog, seeded at startup from
// configuration.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*models.KnowledgeEntry
}

// NewRegistry creates a registry seeded with the given entries.
func NewRegistry(seed []models.KnowledgeEntry) *Registry {
	r := &Registry{entries: make(map[string]*models.KnowledgeEntry, len(seed))}
	for i := range seed {
		e := seed[i]
		r.entries[e.ID] = &e
	}
	return r
}

// Register creates or replaces an entry. Updating an existing entry bumps
// its version. actorTier must grant edit rights.
func (r *Registry) Register(entry models.KnowledgeEntry, actorTier int) (*models.KnowledgeEntry, error) {
	if actorTier < editTier {
		return nil, services.NewValidationError("actor_tier",
			fmt.Sprintf("tier %d may not edit the knowledge base (minimum %d)", actorTier, editTier))
	}
	if entry.ID == "" {
		return nil, services.NewValidationError("id", "required")
	}
	if entry.Title == "" {
		return nil, services.NewValidationError("title", "required")
	}
	if entry.AccessTier < models.MinAgentTier || entry.AccessTier > models.MaxAgentTier {
		return nil, services.NewValidationError("access_tier",
			fmt.Sprintf("must be between %d and %d", models.MinAgentTier, models.MaxAgentTier))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[entry.ID]; ok {
		entry.Version = existing.Version + 1
	} else if entry.Version == 0 {
		entry.Version = 1
	}
	entry.LastUpdated = time.Now()
	r.entries[entry.ID] = &entry

	out := entry
	return &out, nil
}

// Get returns the entry if the reader's tier grants access.
func (r *Registry) Get(id string, readerTier int) (*models.AnnotatedKnowledgeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	if entry.AccessTier > readerTier {
		// Entries above the reader's tier are indistinguishable from
		// missing ones.
		return nil, services.ErrNotFound
	}
	return annotate(entry, readerTier), nil
}

// ListForTier returns every entry visible to the reader, sorted by id.
func (r *Registry) ListForTier(readerTier int) []*models.AnnotatedKnowledgeEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.AnnotatedKnowledgeEntry
	for _, entry := range r.entries {
		if entry.AccessTier > readerTier {
			continue
		}
		out = append(out, annotate(entry, readerTier))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search returns visible entries whose title, tags, or content match the
// query, case-insensitive, sorted by id.
func (r *Registry) Search(query string, readerTier int) []*models.AnnotatedKnowledgeEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return r.ListForTier(readerTier)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.AnnotatedKnowledgeEntry
	for _, entry := range r.entries {
		if entry.AccessTier > readerTier {
			continue
		}
		if matches(entry, q) {
			out = append(out, annotate(entry, readerTier))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the catalog size (all tiers).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func matches(entry *models.KnowledgeEntry, q string) bool {
	if strings.Contains(strings.ToLower(entry.Title), q) {
		return true
	}
	for _, tag := range entry.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	for _, v := range entry.Content {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

func annotate(entry *models.KnowledgeEntry, readerTier int) *models.AnnotatedKnowledgeEntry {
	clone := *entry
	clone.Tags = append([]string(nil), entry.Tags...)
	content := make(map[string]string, len(entry.Content))
	for k, v := range entry.Content {
		content[k] = v
	}
	clone.Content = content
	return &models.AnnotatedKnowledgeEntry{
		KnowledgeEntry: clone,
		CanEdit:        readerTier >= editTier,
		CanApprove:     readerTier >= approveTier,
	}
}
