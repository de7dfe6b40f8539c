package slack

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/store"
)

func newTestDB(t *testing.T, name string) *store.DB {
	t.Helper()
	db, err := store.New(store.Config{Path: "file::memory:?cache=shared", Profile: store.ProfileLedger, Name: name})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func noopPublish(int64, string) error { return nil }

func newTestAlert(t *testing.T, db *store.DB, now time.Time) (int64, domain.Alert) {
	t.Helper()
	m, err := store.NewMonitorRepository(db).Create(context.Background(), "watchdog")
	require.NoError(t, err)

	sess, err := db.Begin(context.Background())
	require.NoError(t, err)
	alert, err := store.NewAlertRepository(db).Create(context.Background(), sess, m.ID, now, noopPublish)
	require.NoError(t, err)
	require.NoError(t, sess.Commit())
	return m.ID, alert
}

func newTestNotification(db *store.DB, fake *fakeAPI) *Notification {
	n := New(newClientWithAPI(fake), db, "C1", "Watchdog", []string{"id"})
	return n
}

func TestNotifySendsNewMessageOnFirstCrossing(t *testing.T) {
	db := newTestDB(t, "notify_send_new")
	now := time.Now()
	_, alert := newTestAlert(t, db, now)
	alert.Priority = domain.PriorityLow

	fake := &fakeAPI{}
	n := newTestNotification(db, fake)

	require.NoError(t, n.Notify(context.Background(), alert, nil))
	assert.Len(t, fake.posts, 1, "a freshly crossed alert should post exactly one message")

	active, err := store.NewNotificationRepository(db).GetActiveByAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "slack:C1", active[0].Target)
}

func TestNotifyDoesNotSendBelowMinPriority(t *testing.T) {
	db := newTestDB(t, "notify_below_threshold")
	now := time.Now()
	_, alert := newTestAlert(t, db, now)
	alert.Priority = domain.PriorityInformational

	fake := &fakeAPI{}
	n := newTestNotification(db, fake)
	n.MinPriorityToSend = domain.PriorityModerate

	require.NoError(t, n.Notify(context.Background(), alert, nil))
	assert.Empty(t, fake.posts, "an alert below MinPriorityToSend must not be posted")
}

func TestNotifyUpdatesExistingMessageOnSecondCall(t *testing.T) {
	db := newTestDB(t, "notify_update_existing")
	now := time.Now()
	_, alert := newTestAlert(t, db, now)
	alert.Priority = domain.PriorityLow

	fake := &fakeAPI{}
	n := newTestNotification(db, fake)

	require.NoError(t, n.Notify(context.Background(), alert, nil))
	require.NoError(t, n.Notify(context.Background(), alert, nil))

	assert.Len(t, fake.posts, 1, "second call must update, not re-post")
	assert.Len(t, fake.updates, 1)
}

func TestNotifyFallsBackToSendOnResendError(t *testing.T) {
	db := newTestDB(t, "notify_resend_fallback")
	now := time.Now()
	_, alert := newTestAlert(t, db, now)
	alert.Priority = domain.PriorityLow

	fake := &fakeAPI{}
	n := newTestNotification(db, fake)
	require.NoError(t, n.Notify(context.Background(), alert, nil))

	fake.updateErr = errTest("message_not_found")
	require.NoError(t, n.Notify(context.Background(), alert, nil))

	assert.Len(t, fake.posts, 2, "a message_not_found update must fall back to a fresh send")
}

func TestNotifyClosesNotificationOnceAlertSolves(t *testing.T) {
	db := newTestDB(t, "notify_close_on_solve")
	now := time.Now()
	_, alert := newTestAlert(t, db, now)
	alert.Priority = domain.PriorityLow

	fake := &fakeAPI{}
	n := newTestNotification(db, fake)
	require.NoError(t, n.Notify(context.Background(), alert, nil))

	alert.Status = domain.AlertSolved
	require.NoError(t, n.Notify(context.Background(), alert, nil))

	active, err := store.NewNotificationRepository(db).GetActiveByAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Empty(t, active, "a solved alert's notification must close")
}

func TestShouldMentionRequiresActiveUnacknowledgedHighPriority(t *testing.T) {
	mention := "U123"
	n := &Notification{Mention: &mention, MinPriorityToMention: domain.PriorityModerate}

	active := domain.Alert{Status: domain.AlertActive, Priority: domain.PriorityHigh}
	assert.True(t, n.shouldMention(active))

	low := domain.Alert{Status: domain.AlertActive, Priority: domain.PriorityLow}
	assert.False(t, n.shouldMention(low))

	solved := domain.Alert{Status: domain.AlertSolved, Priority: domain.PriorityHigh}
	assert.False(t, n.shouldMention(solved))

	n.Mention = nil
	assert.False(t, n.shouldMention(active))
}

func TestIssuesTableTruncatesAtShowLimit(t *testing.T) {
	n := &Notification{IssuesFields: []string{"id"}, IssueShowLimit: 2}
	issues := []domain.Issue{
		{Data: map[string]any{"id": "a"}},
		{Data: map[string]any{"id": "b"}},
		{Data: map[string]any{"id": "c"}},
	}

	table := n.issuesTable(issues)
	assert.Contains(t, table, "id: a")
	assert.Contains(t, table, "id: b")
	assert.NotContains(t, table, "id: c")
	assert.Contains(t, table, "1 more")
}

func TestReactionsListHandlesAlertEventsByEventSourceID(t *testing.T) {
	db := newTestDB(t, "reactions_list")
	now := time.Now()
	_, alert := newTestAlert(t, db, now)
	alert.Priority = domain.PriorityLow

	fake := &fakeAPI{}
	n := newTestNotification(db, fake)
	require.NoError(t, n.Notify(context.Background(), alert, nil))

	reactions := n.ReactionsList()
	require.Contains(t, reactions, "alert_locked")

	err := reactions["alert_locked"][0](map[string]any{"event_source_id": alert.ID})
	require.NoError(t, err)
	assert.Len(t, fake.updates, 1, "re-running the reaction should re-render the existing message")
}

func TestReactionsListErrorsWithoutEventSourceID(t *testing.T) {
	n := &Notification{}
	reactions := n.ReactionsList()
	err := reactions["alert_locked"][0](map[string]any{})
	assert.Error(t, err)
}

type errTest string

func (e errTest) Error() string { return string(e) }
