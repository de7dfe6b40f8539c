package monitor

import "fmt"

// Validate checks a built Module against the §4.E.1 module validation
// contract and returns every violation found (empty slice if the
// module is well-formed). It never returns an error itself - the
// caller (internal/loader) turns a non-empty result into a
// loader.RegistrationError at registration time.
func Validate(m Module) []string {
	var violations []string

	if m.IssueOptions.ModelIDKey == "" {
		violations = append(violations, "issue_options.model_id_key must be set")
	}

	if m.IssueOptions.Solvable && m.IsSolved == nil {
		violations = append(violations, "is_solved is required when issue_options.solvable is true")
	}
	if !m.IssueOptions.Solvable && m.IsSolved != nil {
		violations = append(violations, "is_solved must be nil when issue_options.solvable is false")
	}

	if m.Search == nil {
		violations = append(violations, "search must be set")
	}
	if m.Update == nil {
		violations = append(violations, "update must be set")
	}

	if m.AlertOptions != nil && m.AlertOptions.Rule == nil {
		violations = append(violations, "alert_options.rule must be set when alert_options is present")
	}

	for eventName, reactions := range m.ReactionOptions {
		if !knownEventNames[eventName] {
			violations = append(violations, fmt.Sprintf("reaction_options references unknown event %q", eventName))
		}
		if len(reactions) == 0 {
			violations = append(violations, fmt.Sprintf("reaction_options[%q] must not be an empty list", eventName))
		}
	}

	return violations
}

// knownEventNames is the exhaustive event-name set from spec.md §4.I,
// duplicated here (rather than imported from internal/events) to keep
// internal/monitor free of a dependency on the reactions bus - a
// module only needs to name event strings, not handle envelopes.
var knownEventNames = map[string]bool{
	"issue_created":            true,
	"issue_linked":             true,
	"issue_dropped":            true,
	"issue_solved":             true,
	"issue_updated_solved":     true,
	"issue_updated_not_solved": true,

	"alert_created":                  true,
	"alert_issues_linked":            true,
	"alert_acknowledged":             true,
	"alert_acknowledge_dismissed":    true,
	"alert_locked":                   true,
	"alert_unlocked":                 true,
	"alert_priority_increased":       true,
	"alert_priority_decreased":       true,
	"alert_updated":                  true,
	"alert_solved":                   true,

	"notification_created": true,
	"notification_closed":  true,

	"monitor_enabled_changed": true,
}
