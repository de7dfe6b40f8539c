package monitors

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
)

// hostResourcesDataDir is the path disk usage is sampled from when
// NewHostResources is given no dataDir. Otherwise it samples dataDir, the
// directory the sqlite store and queue persist to, since that's the
// volume most likely to fill up and take the whole platform down with
// it.
const hostResourcesDataDir = "/"

// NewHostResources builds a watchdog over the host's own CPU, memory and
// disk usage. It has no direct original_source counterpart (the Python
// implementation runs inside a managed container platform that reports
// these metrics out of band) - it is a SPEC_FULL.md addition grounded on
// the teacher's own gopsutil/v3 dependency (declared in its go.mod but,
// in the retrieved pack, never exercised by any of its source) and on
// this codebase's existing ValueRule watchdogs for shape.
func NewHostResources(dataDir string) monitor.Factory {
	if dataDir == "" {
		dataDir = hostResourcesDataDir
	}
	return monitor.FactoryFunc(func() (monitor.Module, error) {
		sample := func(ctx context.Context) ([]map[string]any, error) {
			cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
			if err != nil {
				return nil, err
			}
			var cpuPercent float64
			if len(cpuPercents) > 0 {
				cpuPercent = cpuPercents[0]
			}

			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return nil, err
			}

			du, err := disk.UsageWithContext(ctx, dataDir)
			if err != nil {
				return nil, err
			}

			return []map[string]any{
				{
					"id":             "host",
					"cpu_percent":    cpuPercent,
					"memory_percent": vm.UsedPercent,
					"disk_percent":   du.UsedPercent,
				},
			}, nil
		}

		isSolved := func(data map[string]any) bool {
			cpuPercent, _ := data["cpu_percent"].(float64)
			memPercent, _ := data["memory_percent"].(float64)
			diskPercent, _ := data["disk_percent"].(float64)
			return cpuPercent < 90 && memPercent < 90 && diskPercent < 90
		}

		return monitor.Module{
			MonitorOptions: domain.MonitorOptions{
				SearchCron: cronPtr("* * * * *"),
				UpdateCron: cronPtr("* * * * *"),
			},
			IssueOptions: domain.IssueOptions{ModelIDKey: "id", Solvable: true, Unique: true},
			AlertOptions: &domain.AlertOptions{
				Rule: domain.ValueRule{
					ValueKey:       "disk_percent",
					Operation:      domain.OperationGreaterThan,
					PriorityLevels: valueLevels(80, 90, 97),
				},
			},
			Search:   sample,
			Update:   func(ctx context.Context, _ []map[string]any) ([]map[string]any, error) { return sample(ctx) },
			IsSolved: isSolved,
		}, nil
	})
}
