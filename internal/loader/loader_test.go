package loader

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/queue"
	"github.com/aristath/sentinel/internal/registry"
	"github.com/aristath/sentinel/internal/store"
)

// fakeClock is a manually-advanced clock.Clock, so load-loop timing tests
// never depend on wall-clock speed.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestLoader(t *testing.T) (*Loader, *store.DB, *registry.Registry) {
	t.Helper()
	db, err := store.New(store.Config{Path: "file::memory:?cache=shared", Profile: store.ProfileLedger, Name: "loader_test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	reg := registry.New()
	bus := events.NewBus(reg, queue.NewMemoryQueue(time.Second), false, zerolog.Nop())
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(db, reg, bus, clk, "*/1 * * * *", 5*time.Second, 2*time.Second, zerolog.Nop())
	return l, db, reg
}

func validFactory() monitor.Factory {
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		return monitor.Module{
			IssueOptions: domain.IssueOptions{ModelIDKey: "id", Solvable: true},
			Search:       func(context.Context) ([]map[string]any, error) { return nil, nil },
			Update:       func(context.Context, []map[string]any) ([]map[string]any, error) { return nil, nil },
			IsSolved:     func(map[string]any) bool { return false },
		}, nil
	})
}

func TestRegisterCreatesMonitorAndCodeModule(t *testing.T) {
	l, db, _ := newTestLoader(t)
	ctx := context.Background()

	m, err := l.Register(ctx, "example_monitor", validFactory(), nil)
	require.NoError(t, err)
	assert.NotZero(t, m.ID)
	assert.True(t, m.Enabled)

	cm, err := store.NewCodeModuleRepository(db).GetByMonitorID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "example_monitor", cm.RegistrationName)
}

func TestRegisterIsIdempotentByName(t *testing.T) {
	l, _, _ := newTestLoader(t)
	ctx := context.Background()

	first, err := l.Register(ctx, "example_monitor", validFactory(), nil)
	require.NoError(t, err)
	second, err := l.Register(ctx, "example_monitor", validFactory(), nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestRegisterRejectsInvalidModule(t *testing.T) {
	l, _, _ := newTestLoader(t)
	badFactory := monitor.FactoryFunc(func() (monitor.Module, error) {
		return monitor.Module{}, nil
	})

	_, err := l.Register(context.Background(), "broken_monitor", badFactory, nil)
	require.Error(t, err)
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "broken_monitor", regErr.MonitorName)
	assert.NotEmpty(t, regErr.Violations)
}

func TestRunLoadPublishesRegisteredMonitorIntoRegistry(t *testing.T) {
	l, _, reg := newTestLoader(t)
	ctx := context.Background()

	m, err := l.Register(ctx, "example_monitor", validFactory(), nil)
	require.NoError(t, err)

	require.NoError(t, l.runLoad(ctx))

	assert.True(t, reg.IsRegistered(m.ID))
	module, ok := reg.GetModule(m.ID)
	require.True(t, ok)
	assert.Equal(t, "id", module.IssueOptions.ModelIDKey)
}

func TestRunLoadSkipsDisabledMonitors(t *testing.T) {
	l, db, reg := newTestLoader(t)
	ctx := context.Background()

	m, err := l.Register(ctx, "example_monitor", validFactory(), nil)
	require.NoError(t, err)

	sess, err := db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.NewMonitorRepository(db).SetEnabled(ctx, sess, m.ID, false, func(string) error { return nil }))
	require.NoError(t, sess.Commit())

	require.NoError(t, l.runLoad(ctx))
	assert.False(t, reg.IsRegistered(m.ID))
}

func TestRunLoadSkipsUnknownRegistrationName(t *testing.T) {
	l, db, reg := newTestLoader(t)
	ctx := context.Background()

	mon, err := store.NewMonitorRepository(db).Create(ctx, "ghost_monitor")
	require.NoError(t, err)
	require.NoError(t, store.NewCodeModuleRepository(db).Upsert(ctx, mon.ID, "not_registered", "", nil))

	require.NoError(t, l.runLoad(ctx))
	assert.False(t, reg.IsRegistered(mon.ID))
}

func TestRunLoadDisablesMonitorWithMissingCodeModule(t *testing.T) {
	l, db, reg := newTestLoader(t)
	ctx := context.Background()

	mon, err := store.NewMonitorRepository(db).Create(ctx, "orphan_monitor")
	require.NoError(t, err)

	require.NoError(t, l.runLoad(ctx))
	assert.False(t, reg.IsRegistered(mon.ID))

	refreshed, err := store.NewMonitorRepository(db).GetByID(ctx, mon.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.Enabled)
}

func TestRunLoadMarksRegistryReadyAndClearsPending(t *testing.T) {
	l, _, reg := newTestLoader(t)
	reg.RequestReload()

	require.NoError(t, l.runLoad(context.Background()))

	assert.NoError(t, reg.WaitReady(context.Background()))
	assert.False(t, reg.PendingIsSet())
}

type reactingNotifier struct {
	reactions domain.ReactionOptions
}

func (n reactingNotifier) Notify(context.Context, domain.Alert, []domain.Issue) error { return nil }
func (n reactingNotifier) ReactionsList() domain.ReactionOptions                      { return n.reactions }

func TestConfigureMonitorMergesNotifierReactions(t *testing.T) {
	called := false
	m := monitor.Module{
		NotificationOptions: []monitor.Notifier{
			reactingNotifier{reactions: domain.ReactionOptions{
				"notification_closed": {func(map[string]any) error { called = true; return nil }},
			}},
		},
	}

	configureMonitor(&m)

	require.Len(t, m.ReactionOptions["notification_closed"], 1)
	require.NoError(t, m.ReactionOptions["notification_closed"][0](nil))
	assert.True(t, called)
}

func TestTimeUntilNextLoadFallsBackOnInvalidSchedule(t *testing.T) {
	l, _, _ := newTestLoader(t)
	l.loadSchedule = "not a schedule"
	assert.Equal(t, 60*time.Second, l.timeUntilNextLoad())
}

func TestWaitScheduleOrPendingReturnsFalseOnCancel(t *testing.T) {
	l, _, _ := newTestLoader(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, l.waitScheduleOrPending(ctx, time.Second))
}

func TestWaitScheduleOrPendingWakesEarlyOnPending(t *testing.T) {
	l, _, reg := newTestLoader(t)
	reg.RequestReload()
	done := make(chan bool, 1)
	go func() { done <- l.waitScheduleOrPending(context.Background(), time.Hour) }()

	select {
	case woke := <-done:
		assert.True(t, woke)
	case <-time.After(time.Second):
		t.Fatal("waitScheduleOrPending did not wake early on monitors_pending")
	}
}
