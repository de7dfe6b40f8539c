package examples

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/monitor"
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

func buildAndValidate(t *testing.T, factory monitor.Factory) monitor.Module {
	t.Helper()
	module, err := factory.Build()
	require.NoError(t, err)
	assert.Empty(t, monitor.Validate(module), "every example monitor must pass the loader's own validation")
	return module
}

func TestAgeRuleIsSolvedAfterFiveMinutes(t *testing.T) {
	module := buildAndValidate(t, NewAgeRule())

	fresh := map[string]any{"created_at": time.Now().Format(time.RFC3339)}
	assert.False(t, module.IsSolved(fresh))

	old := map[string]any{"created_at": time.Now().Add(-5 * time.Minute).Format(time.RFC3339)}
	assert.True(t, module.IsSolved(old))
}

func TestCountRuleIsSolvedOnlyAtValueOne(t *testing.T) {
	module := buildAndValidate(t, NewCountRule())

	assert.True(t, module.IsSolved(map[string]any{"value": 1}))
	assert.False(t, module.IsSolved(map[string]any{"value": 5}))
}

func TestValueRuleGreaterThanOscillatesWithinBounds(t *testing.T) {
	module := buildAndValidate(t, NewValueRuleGreaterThan())

	rows, err := module.Search(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	for i := 0; i < 50; i++ {
		rows, err = module.Update(context.Background(), rows)
		require.NoError(t, err)
		rate, ok := rows[0]["error_rate"].(float64)
		require.True(t, ok)
		assert.GreaterOrEqual(t, rate, 0.0)
		assert.LessOrEqual(t, rate, 100.0)
	}
}

func TestValueRuleLesserThanNeverSolves(t *testing.T) {
	module := buildAndValidate(t, NewValueRuleLesserThan())
	assert.False(t, module.IsSolved(map[string]any{"success_rate": 0.0}))
}

func TestNonSolvableHasNoIsSolved(t *testing.T) {
	module := buildAndValidate(t, NewNonSolvable())
	assert.Nil(t, module.IsSolved, "a non-solvable issue type must never carry an is_solved function")

	rows, err := module.Search(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, true, rows[0]["deactivated"])
}

func TestQueryIsNonSolvableWithSearch(t *testing.T) {
	module := buildAndValidate(t, NewQuery(nil))
	assert.Nil(t, module.IsSolved)
	assert.NotNil(t, module.Search)
}

func TestReactionsBuildsOnlyKnownEventNames(t *testing.T) {
	module := buildAndValidate(t, NewReactions(zerolog.Nop()))
	require.Contains(t, module.ReactionOptions, "issue_created")
	require.Contains(t, module.ReactionOptions, "issue_solved")
	require.Contains(t, module.ReactionOptions, "alert_priority_increased")

	require.NoError(t, module.ReactionOptions["issue_created"][0](map[string]any{"id": 1}))
}

func TestVariablesBookmarksLastProcessedTimestamp(t *testing.T) {
	db := newTestDB(t, "example_variables")
	_, err := store.NewMonitorRepository(db).Create(context.Background(), ExampleVariablesMonitorName)
	require.NoError(t, err)

	module := buildAndValidate(t, NewVariables(db))

	_, err = module.Search(context.Background())
	require.NoError(t, err)

	variable, err := store.NewVariableRepository(db).Get(context.Background(), 1, "last_processed_timestamp", time.Now())
	require.NoError(t, err)
	require.NotNil(t, variable.Value, "the first search must record a bookmark even if it found nothing to report")
}
