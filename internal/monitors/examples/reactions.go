package examples

import (
	"context"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
)

// NewReactions builds a monitor demonstrating ReactionOptions: it creates
// a small, random batch of issues each run so that issue_created,
// issue_solved and alert_priority_increased all fire during normal
// operation, and each reaction here does nothing but log its event
// payload. Translated from
// original_source/example_monitors/reactions_monitor/reactions_monitor.py.
func NewReactions(log zerolog.Logger) monitor.Factory {
	log = log.With().Str("monitor", "example_reactions").Logger()

	logReaction := func(name string) domain.ReactionFunc {
		return func(payload map[string]any) error {
			log.Info().Str("reaction", name).Interface("payload", payload).Msg("reaction fired")
			return nil
		}
	}

	return monitor.FactoryFunc(func() (monitor.Module, error) {
		search := func(ctx context.Context) ([]map[string]any, error) {
			count := rand.Intn(4)
			rows := make([]map[string]any, count)
			for i := range rows {
				rows[i] = map[string]any{"id": rand.Intn(100000) + 1, "value": rand.Intn(9) + 1}
			}
			return rows, nil
		}

		update := func(ctx context.Context, issues []map[string]any) ([]map[string]any, error) {
			for _, row := range issues {
				row["value"] = rand.Intn(9) + 1
			}
			return issues, nil
		}

		isSolved := func(data map[string]any) bool {
			v, ok := data["value"].(int)
			return ok && v == 1
		}

		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{SearchCron: cronPtr(everyMinute), UpdateCron: cronPtr(everyMinute)},
			IssueOptions:   domain.IssueOptions{ModelIDKey: "id", Solvable: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.CountRule{
					PriorityLevels: domain.PriorityLevels{
						Low:      floatPtr(1),
						Moderate: floatPtr(3),
						High:     floatPtr(5),
						Critical: floatPtr(8),
					},
				},
			},
			ReactionOptions: domain.ReactionOptions{
				"issue_created":            {logReaction("issue_created")},
				"issue_solved":             {logReaction("issue_solved")},
				"alert_priority_increased": {logReaction("alert_priority_increased")},
			},
			Search:   search,
			Update:   update,
			IsSolved: isSolved,
		}, nil
	})
}
