package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ocintel/dispatch/pkg/database"
	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/ident"
	"github.com/ocintel/dispatch/pkg/models"
)

// Store is the persistence surface SessionService writes through to.
// *database.Store satisfies it; tests substitute an in-memory fake.
type Store interface {
	UpsertSession(ctx context.Context, sess *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, filter database.SessionFilter) ([]*models.Session, error)
	InsertMessage(ctx context.Context, msg *models.Message) error
	UpsertProfile(ctx context.Context, p *models.CustomerProfile) error
	GetProfile(ctx context.Context, customerID string) (*models.CustomerProfile, error)
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// writeTimeout bounds critical store writes independently of the caller's
// (often HTTP) context.
const writeTimeout = 10 * time.Second

// SessionService owns session lifecycle state. Live sessions are held in an
// in-memory cache and every mutation writes through to the store under the
// service lock, so the cache is always at least as fresh as the database.
type SessionService struct {
	store     Store
	publisher *events.Publisher

	mu    sync.RWMutex
	cache map[string]*models.Session
}

// NewSessionService creates a SessionService.
func NewSessionService(store Store, publisher *events.Publisher) *SessionService {
	return &SessionService{
		store:     store,
		publisher: publisher,
		cache:     make(map[string]*models.Session),
	}
}

// CreateSessionParams carries validated creation input.
type CreateSessionParams struct {
	Customer       models.Customer
	Category       string
	Urgency        models.Urgency
	PromptID       string
	InitialMessage string
}

// Create stores a new waiting session at tier 1 with its computed priority,
// updates the customer profile, and publishes session_created.
func (s *SessionService) Create(httpCtx context.Context, params CreateSessionParams) (*models.Session, error) {
	if params.Customer.ID == "" {
		return nil, NewValidationError("customer.id", "required")
	}
	if params.Customer.Name == "" {
		return nil, NewValidationError("customer.name", "required")
	}
	if params.Customer.Tier == "" {
		params.Customer.Tier = models.CustomerTierStandard
	}
	if params.Urgency == "" {
		params.Urgency = models.UrgencyNormal
	}
	if params.PromptID == "" {
		return nil, NewValidationError("prompt_id", "required")
	}

	// Use background context with timeout for critical write
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	now := time.Now()
	sess := &models.Session{
		ID:             ident.New(ident.KindSession),
		Customer:       params.Customer,
		Status:         models.SessionStatusWaiting,
		Tier:           1,
		Priority:       models.ComputePriority(params.Customer.Tier, params.Urgency, params.Category),
		Category:       params.Category,
		Urgency:        params.Urgency,
		PromptID:       params.PromptID,
		CreatedAt:      now,
		LastActivityAt: now,
		Context:        models.NewConversationContext(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.UpsertSession(ctx, sess); err != nil {
		return nil, err
	}

	if params.InitialMessage != "" {
		msg := models.Message{
			ID:        ident.New(ident.KindMessage),
			SessionID: sess.ID,
			Timestamp: now,
			Role:      models.RoleCustomer,
			Content:   params.InitialMessage,
		}
		if err := s.store.InsertMessage(ctx, &msg); err != nil {
			return nil, err
		}
		sess.Messages = append(sess.Messages, msg)
	}

	if err := s.touchProfile(ctx, sess); err != nil {
		return nil, err
	}

	s.cache[sess.ID] = sess

	s.publisher.SessionCreated(events.SessionCreatedPayload{
		BasePayload: events.NewBasePayload(events.KindSessionCreated, sess.ID),
		CustomerID:  sess.Customer.ID,
		Status:      sess.Status,
		Priority:    sess.Priority,
		Category:    sess.Category,
	})

	return sess.Clone(), nil
}

// touchProfile creates or refreshes the customer profile for a new session.
// Caller holds the service lock.
func (s *SessionService) touchProfile(ctx context.Context, sess *models.Session) error {
	profile, err := s.store.GetProfile(ctx, sess.Customer.ID)
	if err != nil {
		return err
	}
	now := time.Now()
	if profile == nil {
		profile = &models.CustomerProfile{
			ID:           sess.Customer.ID,
			FirstContact: now,
		}
	}
	profile.Name = sess.Customer.Name
	profile.Email = sess.Customer.Email
	profile.Phone = sess.Customer.Phone
	profile.Tier = sess.Customer.Tier
	profile.LastContact = now
	profile.TotalSessions++
	return s.store.UpsertProfile(ctx, profile)
}

// Get returns a deep copy of the session, preferring the cache.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	if sess, ok := s.cache[sessionID]; ok {
		defer s.mu.RUnlock()
		return sess.Clone(), nil
	}
	s.mu.RUnlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have loaded (and mutated) it meanwhile.
	if cached, ok := s.cache[sessionID]; ok {
		return cached.Clone(), nil
	}
	if !sess.Status.IsTerminal() {
		s.cache[sessionID] = sess
	}
	return sess.Clone(), nil
}

// List returns sessions matching the filter, newest first, without message
// logs. Reads go straight to the store; the cache writes through so the
// store is authoritative.
func (s *SessionService) List(ctx context.Context, filter database.SessionFilter) ([]*models.Session, error) {
	return s.store.ListSessions(ctx, filter)
}

// AppendMessage appends one message to the session log. Completed sessions
// reject appends.
func (s *SessionService) AppendMessage(httpCtx context.Context, sessionID string, msg models.Message) (*models.Session, error) {
	if msg.Content == "" {
		return nil, NewValidationError("content", "required")
	}
	if !msg.Role.Valid() {
		return nil, NewValidationError("role", fmt.Sprintf("unknown role %q", msg.Role))
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.IsTerminal() {
		return nil, ErrSessionCompleted
	}

	if msg.ID == "" {
		msg.ID = ident.New(ident.KindMessage)
	}
	msg.SessionID = sessionID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	if err := s.store.InsertMessage(ctx, &msg); err != nil {
		return nil, err
	}
	sess.Messages = append(sess.Messages, msg)
	sess.LastActivityAt = msg.Timestamp
	if err := s.store.UpsertSession(ctx, sess); err != nil {
		return nil, err
	}

	s.publisher.SessionUpdated(events.SessionUpdatedPayload{
		BasePayload: events.NewBasePayload(events.KindSessionUpdated, sess.ID),
		Status:      sess.Status,
		MessageID:   msg.ID,
		Role:        msg.Role,
	})

	return sess.Clone(), nil
}

// Assign binds a waiting or escalated session to an agent and activates it.
func (s *SessionService) Assign(httpCtx context.Context, sessionID string, agent *models.Agent) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.IsTerminal() {
		return nil, ErrSessionCompleted
	}
	if sess.Status == models.SessionStatusActive && sess.AssignedAgentID != "" {
		return nil, ErrConflict
	}

	now := time.Now()
	sess.Context.StatusChanges = append(sess.Context.StatusChanges, models.AuditEntry{
		Timestamp: now,
		From:      string(sess.Status),
		To:        string(models.SessionStatusActive),
		Reason:    "assigned to " + agent.ID,
	})
	sess.Status = models.SessionStatusActive
	sess.AssignedAgentID = agent.ID
	sess.AssignedAt = &now
	sess.LastActivityAt = now

	if err := s.store.UpsertSession(ctx, sess); err != nil {
		return nil, err
	}

	s.publisher.SessionAssigned(events.SessionAssignedPayload{
		BasePayload: events.NewBasePayload(events.KindSessionAssigned, sess.ID),
		AgentID:     agent.ID,
		AgentTier:   agent.Tier,
		Priority:    sess.Priority,
	})

	return sess.Clone(), nil
}

// Escalate applies an escalation event to the session: bumps the tier,
// switches to escalated, records history and audit entries, detaches the
// current agent, and bumps the customer profile's escalation counter.
// Event publishing is the escalation engine's job.
func (s *SessionService) Escalate(httpCtx context.Context, sessionID string, ev models.EscalationEvent, newPriority int) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.IsTerminal() {
		return nil, ErrSessionCompleted
	}

	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	sess.Context.TierChanges = append(sess.Context.TierChanges, models.AuditEntry{
		Timestamp: now,
		From:      fmt.Sprintf("%d", sess.Tier),
		To:        fmt.Sprintf("%d", ev.ToTier),
		Reason:    ev.Reason,
	})
	sess.Context.StatusChanges = append(sess.Context.StatusChanges, models.AuditEntry{
		Timestamp: now,
		From:      string(sess.Status),
		To:        string(models.SessionStatusEscalated),
		Reason:    ev.Reason,
	})

	sess.Status = models.SessionStatusEscalated
	sess.Tier = ev.ToTier
	sess.Priority = models.ClampPriority(newPriority)
	sess.EscalationHistory = append(sess.EscalationHistory, ev)
	sess.EscalationReason = ev.Reason
	if !ev.SLA.IsZero() {
		deadline := ev.SLA
		sess.EscalationSLA = &deadline
	}
	sess.AssignedAgentID = ""
	sess.AssignedAt = nil
	sess.LastActivityAt = now

	if err := s.store.UpsertSession(ctx, sess); err != nil {
		return nil, err
	}

	if profile, err := s.store.GetProfile(ctx, sess.Customer.ID); err == nil && profile != nil {
		profile.EscalatedIssues++
		if err := s.store.UpsertProfile(ctx, profile); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return sess.Clone(), nil
}

// Complete finishes a session. Completing an already-completed session is a
// no-op, not an error.
func (s *SessionService) Complete(httpCtx context.Context, sessionID, reason string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.IsTerminal() {
		return sess.Clone(), nil
	}

	now := time.Now()
	sess.Context.StatusChanges = append(sess.Context.StatusChanges, models.AuditEntry{
		Timestamp: now,
		From:      string(sess.Status),
		To:        string(models.SessionStatusCompleted),
		Reason:    reason,
	})
	sess.Status = models.SessionStatusCompleted
	sess.CompletedAt = &now
	sess.LastActivityAt = now
	sess.ResolutionTime = now.Sub(sess.CreatedAt)

	if err := s.store.UpsertSession(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.recordResolution(ctx, sess); err != nil {
		return nil, err
	}

	// Completed sessions leave the working set.
	delete(s.cache, sessionID)

	s.publisher.SessionCompleted(events.SessionCompletedPayload{
		BasePayload:      events.NewBasePayload(events.KindSessionCompleted, sess.ID),
		AgentID:          sess.AssignedAgentID,
		ResolutionTimeMS: sess.ResolutionTime.Milliseconds(),
	})

	return sess.Clone(), nil
}

// recordResolution folds the finished session into the customer profile's
// running averages. Caller holds the service lock.
func (s *SessionService) recordResolution(ctx context.Context, sess *models.Session) error {
	profile, err := s.store.GetProfile(ctx, sess.Customer.ID)
	if err != nil {
		return err
	}
	if profile == nil {
		return nil
	}
	prevResolved := profile.ResolvedIssues
	profile.ResolvedIssues++
	profile.LastContact = time.Now()
	// Running average over resolved sessions.
	total := profile.AverageResolutionTime*time.Duration(prevResolved) + sess.ResolutionTime
	profile.AverageResolutionTime = total / time.Duration(profile.ResolvedIssues)
	return s.store.UpsertProfile(ctx, profile)
}

// Update applies mutate to the session under the service lock and writes
// through. The conversation runtime uses this for context mutations.
func (s *SessionService) Update(httpCtx context.Context, sessionID string, mutate func(*models.Session) error) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := mutate(sess); err != nil {
		return nil, err
	}
	if err := s.store.UpsertSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// RecoverState loads every non-completed session from the store into the
// cache and returns the ones that belong back on the waiting queue: waiting
// sessions and escalated sessions without an agent.
func (s *SessionService) RecoverState(ctx context.Context) ([]*models.Session, error) {
	sessions, err := s.store.ListSessions(ctx, database.SessionFilter{
		Statuses: []models.SessionStatus{
			models.SessionStatusWaiting,
			models.SessionStatusActive,
			models.SessionStatusEscalated,
		},
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var reenqueue []*models.Session
	for _, sess := range sessions {
		// List omits message logs; reload the full session.
		full, err := s.store.GetSession(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		if full == nil {
			continue
		}
		s.cache[full.ID] = full

		switch full.Status {
		case models.SessionStatusWaiting:
			reenqueue = append(reenqueue, full.Clone())
		case models.SessionStatusEscalated:
			if full.AssignedAgentID == "" {
				reenqueue = append(reenqueue, full.Clone())
			}
		}
	}
	return reenqueue, nil
}

// PruneCompleted deletes completed sessions older than the retention window
// from the store and evicts them from the cache. Returns the number removed.
func (s *SessionService) PruneCompleted(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.store.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for id, sess := range s.cache {
		if sess.Status != models.SessionStatusCompleted || sess.CompletedAt == nil {
			continue
		}
		if sess.CompletedAt.Before(cutoff) {
			delete(s.cache, id)
		}
	}
	return deleted, nil
}

// CachedCount returns the size of the in-memory working set.
func (s *SessionService) CachedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// getLocked returns the live cached session, loading it from the store on a
// miss. Caller holds the write lock.
func (s *SessionService) getLocked(ctx context.Context, sessionID string) (*models.Session, error) {
	if sess, ok := s.cache[sessionID]; ok {
		return sess, nil
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	if !sess.Status.IsTerminal() {
		s.cache[sessionID] = sess
	}
	return sess, nil
}
