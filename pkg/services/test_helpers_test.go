package services

import (
	"context"
	"sync"
	"time"

	"github.com/ocintel/dispatch/pkg/database"
	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/models"
)

// fakeStore is an in-memory Store for unit tests.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	messages map[string][]models.Message
	profiles map[string]*models.CustomerProfile

	failNext error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]models.Message),
		profiles: make(map[string]*models.CustomerProfile),
	}
}

func (f *fakeStore) takeFailure() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeStore) UpsertSession(_ context.Context, sess *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	clone := sess.Clone()
	clone.Messages = nil
	f.sessions[sess.ID] = clone
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	out := sess.Clone()
	out.Messages = append([]models.Message(nil), f.messages[id]...)
	return out, nil
}

func (f *fakeStore) ListSessions(_ context.Context, filter database.SessionFilter) ([]*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Session
	for _, sess := range f.sessions {
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
	return out, nil
}

func (f *fakeStore) InsertMessage(_ context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	f.messages[msg.SessionID] = append(f.messages[msg.SessionID], *msg)
	return nil
}

func (f *fakeStore) UpsertProfile(_ context.Context, p *models.CustomerProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *p
	f.profiles[p.ID] = &clone
	return nil
}

func (f *fakeStore) GetProfile(_ context.Context, customerID string) (*models.CustomerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[customerID]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (f *fakeStore) DeleteSessionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return 0, err
	}
	var deleted int64
	for id, sess := range f.sessions {
		if sess.Status != models.SessionStatusCompleted || sess.CompletedAt == nil {
			continue
		}
		if sess.CompletedAt.Before(cutoff) {
			delete(f.sessions, id)
			delete(f.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func newTestService() (*SessionService, *fakeStore, *events.Hub) {
	store := newFakeStore()
	hub := events.NewHub(0)
	return NewSessionService(store, events.NewPublisher(hub)), store, hub
}

func testCustomer() models.Customer {
	return models.Customer{
		ID:    "cust-1",
		Name:  "Jane Doe",
		Email: "jane@example.com",
		Tier:  models.CustomerTierStandard,
	}
}
