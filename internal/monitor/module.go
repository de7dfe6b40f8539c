// Package monitor defines the capability set a monitor's code module
// exposes to the rest of the platform, and the static registration
// contract that replaces the original's dynamic module loading.
package monitor

import (
	"context"

	"github.com/aristath/sentinel/internal/domain"
)

// Notifier delivers an alert to an external channel (Slack, email, ...).
// The core only ever calls Notify; concrete notifiers live outside the
// core under internal/notify. ReactionsList lets a notifier register
// its own reactions (e.g. closing itself when its alert solves) - the
// loader's configureMonitor step merges these into ReactionOptions,
// mirroring the original's per-notification reactions_list() merge.
type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert, issues []domain.Issue) error
	ReactionsList() domain.ReactionOptions
}

// SearchFunc produces candidate issue data for new or still-active
// findings. A nil slice (not an error) means "nothing found this run".
type SearchFunc func(ctx context.Context) ([]map[string]any, error)

// UpdateFunc refreshes the data of a monitor's currently active issues,
// returning the updated rows.
type UpdateFunc func(ctx context.Context, issues []map[string]any) ([]map[string]any, error)

// IsSolvedFunc reports whether an active issue's current data means it
// should be closed. Only called when IssueOptions.Solvable is true.
type IsSolvedFunc func(data map[string]any) bool

// Module bundles everything a loaded monitor needs: its scheduling and
// matching options, and the three routine entry points the routine
// engine (internal/routine) calls into. It is the Go analogue of the
// original's MonitorModule protocol.
type Module struct {
	MonitorOptions      domain.MonitorOptions
	IssueOptions        domain.IssueOptions
	AlertOptions        *domain.AlertOptions
	ReactionOptions     domain.ReactionOptions
	NotificationOptions []Notifier

	Search   SearchFunc
	Update   UpdateFunc
	IsSolved IsSolvedFunc
}

// Factory builds a Module. Go has no runtime eval, so a monitor is
// registered by handing the loader a Factory instead of source text -
// spec.md §9's "pluggable module factory" in place of dynamic import.
type Factory interface {
	Build() (Module, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func() (Module, error)

func (f FactoryFunc) Build() (Module, error) { return f() }
