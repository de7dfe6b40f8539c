package examples

import (
	"context"
	"fmt"

	"github.com/aristath/sentinel/internal/database"
	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
)

// NewQuery builds a monitor demonstrating a monitor backed by an
// arbitrary external database connection, rather than this platform's
// own store: it runs a trivial "select current_timestamp" against db on
// every search and update, the same connectivity smoke test the original
// ships as a template for monitors that watch a real external query.
// Translated from
// original_source/example_monitors/query_monitor/query_monitor.py, with
// db provided by internal/database - the teacher's own generic SQLite
// connection wrapper (which this module's own store replaced for monitor
// persistence, and which the backup service still uses), used here as
// exactly the kind of arbitrary external connection a real query monitor
// would be pointed at.
func NewQuery(db *database.DB) monitor.Factory {
	probe := func(ctx context.Context) ([]map[string]any, error) {
		rows, err := db.QueryContext(ctx, `SELECT current_timestamp AS ts`)
		if err != nil {
			return nil, fmt.Errorf("query current timestamp: %w", err)
		}
		defer rows.Close()

		if !rows.Next() {
			return nil, rows.Err()
		}
		var ts string
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		return []map[string]any{
			{"id": "database_connection_check", "current_timestamp": ts},
		}, rows.Err()
	}

	return monitor.FactoryFunc(func() (monitor.Module, error) {
		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{SearchCron: cronPtr(everyMinute), UpdateCron: cronPtr(everyMinute)},
			IssueOptions:   domain.IssueOptions{ModelIDKey: "id", Solvable: false},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.CountRule{
					PriorityLevels: domain.PriorityLevels{
						Low:      floatPtr(0),
						Moderate: floatPtr(1),
						High:     floatPtr(2),
						Critical: floatPtr(3),
					},
				},
			},
			Search: probe,
			Update: func(ctx context.Context, issues []map[string]any) ([]map[string]any, error) {
				rows, err := probe(ctx)
				if err != nil || len(rows) == 0 {
					return issues, err
				}
				for _, row := range issues {
					row["current_timestamp"] = rows[0]["current_timestamp"]
				}
				return issues, nil
			},
		}, nil
	})
}
