// Package monitors holds the self-monitoring monitor.Factory
// implementations the platform registers against itself: watchdogs over
// monitor health (consecutive failures, stuck queues) and over its own
// resource usage. Translated from
// original_source/internal_monitors/*.py - each watchdog file here except
// host_resources.go corresponds to exactly one of those modules.
package monitors

import "github.com/aristath/sentinel/internal/domain"

func floatPtr(v float64) *float64 { return &v }

// valueLevels builds a domain.PriorityLevels from the moderate/high/critical
// thresholds every internal monitor's ValueRule declares - none of them
// configure an informational or low level, matching the originals.
func valueLevels(moderate, high, critical float64) domain.PriorityLevels {
	return domain.PriorityLevels{
		Moderate: floatPtr(moderate),
		High:     floatPtr(high),
		Critical: floatPtr(critical),
	}
}

func cronPtr(s string) *string { return &s }
