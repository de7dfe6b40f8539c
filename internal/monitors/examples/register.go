package examples

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/database"
	"github.com/aristath/sentinel/internal/loader"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/store"
)

// RegisterAll registers every demonstration monitor in this package
// against l. queryDB is the external connection NewQuery probes - pass
// nil to skip registering it (e.g. when no external database is
// configured). Not part of RegisterBuiltins: these monitors exist to be
// read and copied as templates, not to run unconditionally on every
// deployment, the same role original_source/example_monitors/ plays
// alongside the real internal_monitors/ directory it ships next to.
func RegisterAll(ctx context.Context, l *loader.Loader, db *store.DB, queryDB *database.DB, log zerolog.Logger) error {
	builtins := map[string]monitor.Factory{
		"example_age_rule":            NewAgeRule(),
		"example_count_rule":          NewCountRule(),
		"example_value_rule_gt":       NewValueRuleGreaterThan(),
		"example_value_rule_lt":       NewValueRuleLesserThan(),
		"example_non_solvable_issues": NewNonSolvable(),
		ExampleVariablesMonitorName:   NewVariables(db),
		"example_reactions":           NewReactions(log),
	}

	if queryDB != nil {
		builtins["example_query"] = NewQuery(queryDB)
	}

	for name, factory := range builtins {
		if _, err := l.Register(ctx, name, factory, nil); err != nil {
			return err
		}
	}
	return nil
}
