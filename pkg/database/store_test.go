package database

import (
	"context"
	"crypto/rand"
	stdsql "database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ocintel/dispatch/pkg/models"
)

var (
	// Shared connection string for all tests in local dev
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// getOrCreateSharedDatabase returns a connection string to the shared
// database. In CI, uses CI_DATABASE_URL. In local dev, starts a shared
// testcontainer once per package.
func getOrCreateSharedDatabase(t *testing.T) string {
	if ciDatabaseURL := os.Getenv("CI_DATABASE_URL"); ciDatabaseURL != "" {
		t.Log("Using external PostgreSQL from CI_DATABASE_URL")
		return ciDatabaseURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared PostgreSQL testcontainer for all tests")

		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}

		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("failed to get connection string: %w", err)
			return
		}
		sharedConnStr = connStr
	})

	require.NoError(t, containerErr, "Failed to setup shared test container")
	return sharedConnStr
}

// generateSchemaName creates a unique, PostgreSQL-safe schema name for the
// test. Format: test_<sanitized_test_name>_<random_hex>.
func generateSchemaName(t *testing.T) string {
	testName := strings.ToLower(t.Name())
	testName = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, testName)
	if len(testName) > 40 {
		testName = testName[:40]
	}

	randomBytes := make([]byte, 4)
	_, err := rand.Read(randomBytes)
	require.NoError(t, err)

	return fmt.Sprintf("test_%s_%s", testName, hex.EncodeToString(randomBytes))
}

// newTestStore creates a Store backed by a fresh schema in the shared test
// database, with migrations applied. The schema is dropped on cleanup.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}
	ctx := context.Background()

	connStr := getOrCreateSharedDatabase(t)
	schemaName := generateSchemaName(t)

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schemaName))
	require.NoError(t, err)
	_ = db.Close()

	// Reconnect with search_path set so every pooled connection uses the
	// test schema.
	separator := "?"
	if strings.Contains(connStr, "?") {
		separator = "&"
	}
	db, err = stdsql.Open("pgx", connStr+separator+"search_path="+schemaName)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	require.NoError(t, MigrateUp(db, "test"))

	t.Cleanup(func() {
		_, err := db.ExecContext(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
		if err != nil {
			t.Logf("Warning: failed to drop schema %s: %v", schemaName, err)
		}
		_ = db.Close()
	})

	return NewStore(db)
}

func testSession(id string) *models.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Session{
		ID: id,
		Customer: models.Customer{
			ID:   "cust-1",
			Name: "Dana Silva",
			Tier: models.CustomerTierPremium,
		},
		Status:         models.SessionStatusWaiting,
		Tier:           1,
		Priority:       4,
		Category:       "billing",
		Urgency:        models.UrgencyHigh,
		PromptID:       "general_support",
		CreatedAt:      now,
		LastActivityAt: now,
		Context:        models.NewConversationContext(),
	}
}

func TestStoreSessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := testSession("sess-rt-1")
	sess.Context.ExtractedFields["customer_name"] = "Dana Silva"
	require.NoError(t, store.UpsertSession(ctx, sess))

	got, err := store.GetSession(ctx, "sess-rt-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, models.SessionStatusWaiting, got.Status)
	assert.Equal(t, 4, got.Priority)
	assert.Equal(t, "Dana Silva", got.Customer.Name)
	assert.Equal(t, "Dana Silva", got.Context.ExtractedFields["customer_name"])
	assert.WithinDuration(t, sess.CreatedAt, got.CreatedAt, time.Millisecond)

	// Upsert is idempotent on the primary key: the second write updates.
	sess.Status = models.SessionStatusActive
	sess.AssignedAgentID = "agent-1"
	assignedAt := time.Now().UTC().Truncate(time.Millisecond)
	sess.AssignedAt = &assignedAt
	require.NoError(t, store.UpsertSession(ctx, sess))

	got, err = store.GetSession(ctx, "sess-rt-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, got.Status)
	assert.Equal(t, "agent-1", got.AssignedAgentID)
	require.NotNil(t, got.AssignedAt)
}

func TestStoreGetSessionMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetSession(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreMessagesOrderedBySeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSession(ctx, testSession("sess-msg-1")))

	// Insert with deliberately non-monotonic timestamps; seq decides order.
	base := time.Now().UTC()
	contents := []string{"first", "second", "third"}
	for i, content := range contents {
		msg := &models.Message{
			ID:        fmt.Sprintf("msg-%d", i),
			SessionID: "sess-msg-1",
			Timestamp: base.Add(-time.Duration(i) * time.Minute),
			Role:      models.RoleCustomer,
			Content:   content,
		}
		require.NoError(t, store.InsertMessage(ctx, msg))
	}

	got, err := store.GetSession(ctx, "sess-msg-1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	for i, content := range contents {
		assert.Equal(t, content, got.Messages[i].Content)
	}

	// Re-inserting an existing message ID is a no-op.
	require.NoError(t, store.InsertMessage(ctx, &models.Message{
		ID: "msg-0", SessionID: "sess-msg-1",
		Timestamp: base, Role: models.RoleCustomer, Content: "duplicate",
	}))
	got, err = store.GetSession(ctx, "sess-msg-1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 3)
}

func TestStoreListSessionsFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	waiting := testSession("sess-list-waiting")
	require.NoError(t, store.UpsertSession(ctx, waiting))

	active := testSession("sess-list-active")
	active.Status = models.SessionStatusActive
	active.AssignedAgentID = "agent-7"
	active.CreatedAt = waiting.CreatedAt.Add(time.Second)
	require.NoError(t, store.UpsertSession(ctx, active))

	completed := testSession("sess-list-done")
	completed.Status = models.SessionStatusCompleted
	completed.CreatedAt = waiting.CreatedAt.Add(2 * time.Second)
	require.NoError(t, store.UpsertSession(ctx, completed))

	// Newest first, no filter.
	all, err := store.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "sess-list-done", all[0].ID)

	// Status filter.
	open, err := store.ListSessions(ctx, SessionFilter{
		Statuses: []models.SessionStatus{models.SessionStatusWaiting, models.SessionStatusActive},
	})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	// Agent filter.
	mine, err := store.ListSessions(ctx, SessionFilter{AgentID: "agent-7"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "sess-list-active", mine[0].ID)

	// Pagination.
	page, err := store.ListSessions(ctx, SessionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "sess-list-active", page[0].ID)
}

func TestStoreProfileRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	profile := &models.CustomerProfile{
		ID:            "cust-42",
		Name:          "Priya Nair",
		Email:         "priya@example.com",
		Tier:          models.CustomerTierVIP,
		FirstContact:  now,
		LastContact:   now,
		TotalSessions: 1,
		Tags:          []string{"vip", "crypto"},
		Notes:         []string{"prefers email"},
	}
	require.NoError(t, store.UpsertProfile(ctx, profile))

	got, err := store.GetProfile(ctx, "cust-42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Priya Nair", got.Name)
	assert.Equal(t, models.CustomerTierVIP, got.Tier)
	assert.Equal(t, []string{"vip", "crypto"}, got.Tags)

	profile.TotalSessions = 2
	profile.ResolvedIssues = 1
	require.NoError(t, store.UpsertProfile(ctx, profile))

	got, err = store.GetProfile(ctx, "cust-42")
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalSessions)
	assert.Equal(t, 1, got.ResolvedIssues)

	missing, err := store.GetProfile(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreEvaluationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	eval := &models.Evaluation{
		ID:            "eval-1",
		InteractionID: "sess-1",
		AgentID:       "agent-1",
		QAAgentID:     "qa-1",
		ScorecardID:   "general_support",
		Status:        models.EvaluationStatusInProgress,
		CreatedAt:     now,
		Criteria: []models.EvalCriterion{
			{ID: "communication", Name: "Communication", Weight: 60, MaxScore: 10},
		},
	}
	require.NoError(t, store.UpsertEvaluation(ctx, eval))

	got, err := store.GetEvaluation(ctx, "eval-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "qa-1", got.QAAgentID)
	require.Len(t, got.Criteria, 1)
	assert.Equal(t, 60.0, got.Criteria[0].Weight)

	eval.Status = models.EvaluationStatusCompleted
	eval.WeightedScore = 87.5
	eval.Passed = true
	completedAt := now.Add(time.Minute)
	eval.CompletedAt = &completedAt
	require.NoError(t, store.UpsertEvaluation(ctx, eval))

	other := *eval
	other.ID = "eval-2"
	other.QAAgentID = "qa-2"
	other.CreatedAt = now.Add(time.Second)
	require.NoError(t, store.UpsertEvaluation(ctx, &other))

	all, err := store.ListEvaluations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := store.ListEvaluations(ctx, "qa-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "eval-1", mine[0].ID)
	assert.InDelta(t, 87.5, mine[0].WeightedScore, 0.001)
	assert.True(t, mine[0].Passed)
}

func TestHealthReportsPoolStats(t *testing.T) {
	store := newTestStore(t)

	status, err := Health(context.Background(), store.db)
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.LessOrEqual(t, status.InUse, status.MaxOpenConns)
}
