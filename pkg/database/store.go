package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ocintel/dispatch/pkg/models"
)

// Store is the SQL persistence layer. It is deliberately dumb: no caching,
// no domain rules. The services layer owns the in-memory working set and
// writes through.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store on the given connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	// Statuses restricts to the given lifecycle states; empty means all.
	Statuses []models.SessionStatus
	// AgentID restricts to sessions assigned to the agent.
	AgentID string
	Limit   int
	Offset  int
}

const sessionColumns = `id, status, tier, priority, category, urgency, prompt_id,
	customer, context, escalation_history, escalation_reason, escalation_sla,
	assigned_agent_id, created_at, last_activity_at, assigned_at, completed_at,
	resolution_time_ms`

// UpsertSession writes the session row (without its messages; messages are
// append-only rows in their own table).
func (s *Store) UpsertSession(ctx context.Context, sess *models.Session) error {
	customer, err := json.Marshal(sess.Customer)
	if err != nil {
		return fmt.Errorf("failed to marshal customer: %w", err)
	}
	contextJSON, err := json.Marshal(sess.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	history, err := json.Marshal(sess.EscalationHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation history: %w", err)
	}
	if sess.EscalationHistory == nil {
		history = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			tier = EXCLUDED.tier,
			priority = EXCLUDED.priority,
			category = EXCLUDED.category,
			urgency = EXCLUDED.urgency,
			prompt_id = EXCLUDED.prompt_id,
			customer = EXCLUDED.customer,
			context = EXCLUDED.context,
			escalation_history = EXCLUDED.escalation_history,
			escalation_reason = EXCLUDED.escalation_reason,
			escalation_sla = EXCLUDED.escalation_sla,
			assigned_agent_id = EXCLUDED.assigned_agent_id,
			last_activity_at = EXCLUDED.last_activity_at,
			assigned_at = EXCLUDED.assigned_at,
			completed_at = EXCLUDED.completed_at,
			resolution_time_ms = EXCLUDED.resolution_time_ms`,
		sess.ID, string(sess.Status), sess.Tier, sess.Priority,
		nullStr(sess.Category), nullStr(string(sess.Urgency)), sess.PromptID,
		customer, contextJSON, history,
		nullStr(sess.EscalationReason), sess.EscalationSLA,
		nullStr(sess.AssignedAgentID), sess.CreatedAt, sess.LastActivityAt,
		sess.AssignedAt, sess.CompletedAt, sess.ResolutionTime.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession loads a session and its message log. Returns (nil, nil) when
// the session does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	msgs, err := s.listMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return sess, nil
}

// ListSessions loads session rows matching the filter, newest first, without
// message logs.
func (s *Store) ListSessions(ctx context.Context, filter SessionFilter) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	var where []string

	if len(filter.Statuses) > 0 {
		placeholders := ""
		for i, st := range filter.Statuses {
			if i > 0 {
				placeholders += ", "
			}
			args = append(args, string(st))
			placeholders += fmt.Sprintf("$%d", len(args))
		}
		where = append(where, "status IN ("+placeholders+")")
	}
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		where = append(where, fmt.Sprintf("assigned_agent_id = $%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// InsertMessage appends one message row.
func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) error {
	var metadata []byte
	if len(msg.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal message metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, ts, role, content, agent_id, response_type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.SessionID, msg.Timestamp, string(msg.Role), msg.Content,
		nullStr(msg.AgentID), nullStr(string(msg.ResponseType)), metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *Store) listMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, ts, role, content, agent_id, response_type, metadata
		FROM messages WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var role, content string
		var agentID, responseType sql.NullString
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Timestamp, &role, &content,
			&agentID, &responseType, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = models.MessageRole(role)
		m.Content = content
		m.AgentID = agentID.String
		m.ResponseType = models.ResponseType(responseType.String)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal message metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertProfile writes the customer profile row.
func (s *Store) UpsertProfile(ctx context.Context, p *models.CustomerProfile) error {
	tags, err := json.Marshal(sliceOrEmpty(p.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	notes, err := json.Marshal(sliceOrEmpty(p.Notes))
	if err != nil {
		return fmt.Errorf("failed to marshal notes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO customer_profiles (id, name, email, phone, tier, first_contact,
			last_contact, total_sessions, resolved_issues, escalated_issues,
			average_resolution_time_ms, tags, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			tier = EXCLUDED.tier,
			last_contact = EXCLUDED.last_contact,
			total_sessions = EXCLUDED.total_sessions,
			resolved_issues = EXCLUDED.resolved_issues,
			escalated_issues = EXCLUDED.escalated_issues,
			average_resolution_time_ms = EXCLUDED.average_resolution_time_ms,
			tags = EXCLUDED.tags,
			notes = EXCLUDED.notes`,
		p.ID, p.Name, nullStr(p.Email), nullStr(p.Phone), string(p.Tier),
		p.FirstContact, p.LastContact, p.TotalSessions, p.ResolvedIssues,
		p.EscalatedIssues, p.AverageResolutionTime.Milliseconds(), tags, notes,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile %s: %w", p.ID, err)
	}
	return nil
}

// GetProfile loads a customer profile. Returns (nil, nil) when missing.
func (s *Store) GetProfile(ctx context.Context, customerID string) (*models.CustomerProfile, error) {
	var p models.CustomerProfile
	var email, phone sql.NullString
	var tier string
	var avgMS int64
	var tags, notes []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, tier, first_contact, last_contact,
			total_sessions, resolved_issues, escalated_issues,
			average_resolution_time_ms, tags, notes
		FROM customer_profiles WHERE id = $1`, customerID,
	).Scan(&p.ID, &p.Name, &email, &phone, &tier, &p.FirstContact, &p.LastContact,
		&p.TotalSessions, &p.ResolvedIssues, &p.EscalatedIssues, &avgMS, &tags, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", customerID, err)
	}

	p.Email = email.String
	p.Phone = phone.String
	p.Tier = models.CustomerTier(tier)
	p.AverageResolutionTime = time.Duration(avgMS) * time.Millisecond
	if err := json.Unmarshal(tags, &p.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(notes, &p.Notes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notes: %w", err)
	}
	return &p, nil
}

// UpsertEvaluation writes the evaluation row. Query columns are denormalized
// out of the JSONB payload.
func (s *Store) UpsertEvaluation(ctx context.Context, e *models.Evaluation) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluations (id, interaction_id, agent_id, qa_agent_id,
			scorecard_id, status, weighted_score, passed, calibration_required,
			created_at, completed_at, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			weighted_score = EXCLUDED.weighted_score,
			passed = EXCLUDED.passed,
			calibration_required = EXCLUDED.calibration_required,
			completed_at = EXCLUDED.completed_at,
			data = EXCLUDED.data`,
		e.ID, e.InteractionID, e.AgentID, e.QAAgentID, e.ScorecardID,
		string(e.Status), e.WeightedScore, e.Passed, e.CalibrationRequired,
		e.CreatedAt, e.CompletedAt, data,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert evaluation %s: %w", e.ID, err)
	}
	return nil
}

// GetEvaluation loads an evaluation. Returns (nil, nil) when missing.
func (s *Store) GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM evaluations WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load evaluation %s: %w", id, err)
	}

	var e models.Evaluation
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evaluation %s: %w", id, err)
	}
	return &e, nil
}

// ListEvaluations loads all evaluations, newest first. qaAgentID narrows to
// one evaluator when non-empty.
func (s *Store) ListEvaluations(ctx context.Context, qaAgentID string) ([]*models.Evaluation, error) {
	query := `SELECT data FROM evaluations`
	var args []any
	if qaAgentID != "" {
		query += ` WHERE qa_agent_id = $1`
		args = append(args, qaAgentID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var out []*models.Evaluation
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		var e models.Evaluation
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evaluation: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// DeleteSessionsBefore removes completed sessions whose completion is older
// than the cutoff. Messages cascade. Returns the number of sessions removed.
func (s *Store) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE status = $1 AND completed_at IS NOT NULL AND completed_at < $2`,
		string(models.SessionStatusCompleted), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteEvaluationsBefore removes finished evaluations whose completion is
// older than the cutoff. In-progress evaluations are never touched.
func (s *Store) DeleteEvaluationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM evaluations
		WHERE completed_at IS NOT NULL AND completed_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old evaluations: %w", err)
	}
	return res.RowsAffected()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var sess models.Session
	var status string
	var category, urgency, escalationReason, assignedAgent sql.NullString
	var customer, contextJSON, history []byte
	var resolutionMS int64

	err := row.Scan(&sess.ID, &status, &sess.Tier, &sess.Priority,
		&category, &urgency, &sess.PromptID,
		&customer, &contextJSON, &history,
		&escalationReason, &sess.EscalationSLA,
		&assignedAgent, &sess.CreatedAt, &sess.LastActivityAt,
		&sess.AssignedAt, &sess.CompletedAt, &resolutionMS)
	if err != nil {
		return nil, err
	}

	sess.Status = models.SessionStatus(status)
	sess.Category = category.String
	sess.Urgency = models.Urgency(urgency.String)
	sess.EscalationReason = escalationReason.String
	sess.AssignedAgentID = assignedAgent.String
	sess.ResolutionTime = time.Duration(resolutionMS) * time.Millisecond

	if err := json.Unmarshal(customer, &sess.Customer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal customer: %w", err)
	}
	if err := json.Unmarshal(contextJSON, &sess.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}
	if err := json.Unmarshal(history, &sess.EscalationHistory); err != nil {
		return nil, fmt.Errorf("failed to unmarshal escalation history: %w", err)
	}
	if sess.Context.ExtractedFields == nil {
		sess.Context.ExtractedFields = make(map[string]string)
	}
	return &sess, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
