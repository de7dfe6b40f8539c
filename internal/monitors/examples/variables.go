package examples

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/store"
)

// ExampleVariablesMonitorName is the name NewVariables must be registered
// under - the monitor looks its own row up by this name on first access,
// since (unlike the original, where a module's variables are implicitly
// scoped by its Python module object) a Go Factory's Search/Update
// closures are never handed their own monitor id.
const ExampleVariablesMonitorName = "example_variables"

// NewVariables builds a monitor demonstrating monitor-scoped state: it
// bookmarks the timestamp of the newest event it has processed in a
// "last_processed_timestamp" variable, so each search only considers
// events the simulated source produced after that point. Translated from
// original_source/example_monitors/variables_monitor/variables_monitor.py.
func NewVariables(db *store.DB) monitor.Factory {
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		monitors := store.NewMonitorRepository(db)
		vars := store.NewVariableRepository(db)

		var mu sync.Mutex
		var monitorID int64
		resolveID := func(ctx context.Context) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			if monitorID != 0 {
				return monitorID, nil
			}
			m, err := monitors.GetByName(ctx, ExampleVariablesMonitorName)
			if err != nil {
				return 0, fmt.Errorf("resolve %s monitor id: %w", ExampleVariablesMonitorName, err)
			}
			monitorID = m.ID
			return monitorID, nil
		}

		search := func(ctx context.Context) ([]map[string]any, error) {
			id, err := resolveID(ctx)
			if err != nil {
				return nil, err
			}

			now := time.Now()
			bookmark, err := vars.Get(ctx, id, "last_processed_timestamp", now)
			if err != nil {
				return nil, err
			}
			var lastTimestamp int64
			if bookmark.Value != nil {
				lastTimestamp, _ = strconv.ParseInt(*bookmark.Value, 10, 64)
			}

			var events []map[string]any
			for i := 0; i < rand.Intn(6); i++ {
				eventTime := now.Unix() - int64(rand.Intn(300))
				if bookmark.Value == nil || eventTime > lastTimestamp {
					events = append(events, map[string]any{
						"id":              rand.Intn(100000) + 1,
						"event_timestamp": eventTime,
						"error_message":   fmt.Sprintf("Error event %d", i),
					})
				}
			}

			nowStr := strconv.FormatInt(now.Unix(), 10)
			bookmark.Set(&nowStr, now)
			if err := vars.Set(ctx, bookmark); err != nil {
				return nil, err
			}
			return events, nil
		}

		isSolved := func(map[string]any) bool {
			return (time.Now().Unix()/60)%10 == 0 && rand.Float64() < 0.9
		}

		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{SearchCron: cronPtr(everyMinute), UpdateCron: cronPtr(everyMinute)},
			IssueOptions:   domain.IssueOptions{ModelIDKey: "id", Solvable: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.CountRule{
					PriorityLevels: domain.PriorityLevels{
						Low:      floatPtr(0),
						Moderate: floatPtr(2),
						High:     floatPtr(4),
						Critical: floatPtr(6),
					},
				},
			},
			Search:   search,
			Update:   func(ctx context.Context, issues []map[string]any) ([]map[string]any, error) { return issues, nil },
			IsSolved: isSolved,
		}, nil
	})
}
