package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: "file::memory:?cache=shared", Profile: ProfileLedger, Name: "test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.Migrate())
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestMonitorRepositoryCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewMonitorRepository(db)
	ctx := context.Background()

	m, err := repo.Create(ctx, "disk_space_check")
	require.NoError(t, err)
	assert.True(t, m.Enabled)
	assert.NotZero(t, m.ID)

	fetched, err := repo.GetByName(ctx, "disk_space_check")
	require.NoError(t, err)
	assert.Equal(t, m.ID, fetched.ID)
}

func TestIssueLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	monitors := NewMonitorRepository(db)
	issues := NewIssueRepository(db)

	m, err := monitors.Create(ctx, "queue_lag")
	require.NoError(t, err)

	unique, err := issues.IsUnique(ctx, m.ID, "queue-a")
	require.NoError(t, err)
	assert.True(t, unique)

	var published []string
	sess, err := db.Begin(ctx)
	require.NoError(t, err)

	issue, err := issues.Create(ctx, sess, m.ID, "queue-a", map[string]any{"lag": 42.0}, time.Now(),
		func(_ int64, eventName string) error {
			published = append(published, eventName)
			return nil
		})
	require.NoError(t, err)
	require.NoError(t, sess.Commit())
	assert.Equal(t, []string{"issue_created"}, published)

	unique, err = issues.IsUnique(ctx, m.ID, "queue-a")
	require.NoError(t, err)
	assert.False(t, unique)

	fetched, err := issues.GetByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 42.0, fetched.Data["lag"])
}

func TestSessionRollbackDiscardsCallbacks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sess, err := db.Begin(ctx)
	require.NoError(t, err)

	called := false
	sess.AddCallback(func() error { called = true; return nil })
	require.NoError(t, sess.Rollback())
	assert.False(t, called)
}
