package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ocintel/dispatch/pkg/models"
)

// MemoryStore is an in-memory drop-in for Store. It backs tests and
// database-less development runs; semantics mirror the SQL store, including
// (nil, nil) for missing rows.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*models.Session
	messages    map[string][]models.Message
	profiles    map[string]*models.CustomerProfile
	evaluations map[string]*models.Evaluation
	seq         int64
	sessionSeq  map[string]int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*models.Session),
		messages:    make(map[string][]models.Message),
		profiles:    make(map[string]*models.CustomerProfile),
		evaluations: make(map[string]*models.Evaluation),
		sessionSeq:  make(map[string]int64),
	}
}

// UpsertSession stores the session row. Messages live in their own table and
// are not written here.
func (m *MemoryStore) UpsertSession(_ context.Context, sess *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := sess.Clone()
	clone.Messages = nil
	if _, ok := m.sessions[sess.ID]; !ok {
		m.seq++
		m.sessionSeq[sess.ID] = m.seq
	}
	m.sessions[sess.ID] = clone
	return nil
}

// GetSession returns the session with its messages, or (nil, nil).
func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	out := sess.Clone()
	out.Messages = append([]models.Message(nil), m.messages[id]...)
	return out, nil
}

// ListSessions returns matching sessions newest-first, without messages.
func (m *MemoryStore) ListSessions(_ context.Context, filter SessionFilter) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Session
	for _, sess := range m.sessions {
		if len(filter.Statuses) > 0 {
			match := false
			for _, st := range filter.Statuses {
				if sess.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if filter.AgentID != "" && sess.AssignedAgentID != filter.AgentID {
			continue
		}
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return m.sessionSeq[out[i].ID] > m.sessionSeq[out[j].ID]
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// InsertMessage appends the message; duplicate ids are ignored.
func (m *MemoryStore) InsertMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.messages[msg.SessionID] {
		if existing.ID == msg.ID {
			return nil
		}
	}
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], *msg)
	return nil
}

// UpsertProfile stores the customer profile.
func (m *MemoryStore) UpsertProfile(_ context.Context, p *models.CustomerProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *p
	m.profiles[p.ID] = &clone
	return nil
}

// GetProfile returns the profile or (nil, nil).
func (m *MemoryStore) GetProfile(_ context.Context, customerID string) (*models.CustomerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[customerID]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

// DeleteSessionsBefore removes completed sessions older than the cutoff,
// along with their messages.
func (m *MemoryStore) DeleteSessionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, sess := range m.sessions {
		if sess.Status != models.SessionStatusCompleted || sess.CompletedAt == nil {
			continue
		}
		if !sess.CompletedAt.Before(cutoff) {
			continue
		}
		delete(m.sessions, id)
		delete(m.messages, id)
		delete(m.sessionSeq, id)
		deleted++
	}
	return deleted, nil
}

// DeleteEvaluationsBefore removes finished evaluations older than the cutoff.
func (m *MemoryStore) DeleteEvaluationsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, e := range m.evaluations {
		if e.CompletedAt == nil || !e.CompletedAt.Before(cutoff) {
			continue
		}
		delete(m.evaluations, id)
		deleted++
	}
	return deleted, nil
}

// UpsertEvaluation stores the evaluation.
func (m *MemoryStore) UpsertEvaluation(_ context.Context, e *models.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations[e.ID] = e.Clone()
	return nil
}

// GetEvaluation returns the evaluation or (nil, nil).
func (m *MemoryStore) GetEvaluation(_ context.Context, id string) (*models.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.evaluations[id]
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}

// ListEvaluations returns evaluations, optionally filtered by QA agent,
// newest-first.
func (m *MemoryStore) ListEvaluations(_ context.Context, qaAgentID string) ([]*models.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Evaluation
	for _, e := range m.evaluations {
		if qaAgentID != "" && e.QAAgentID != qaAgentID {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
