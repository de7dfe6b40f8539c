package domain

// MonitorOptions is the primary per-monitor configuration declared by a
// monitor's code module.
type MonitorOptions struct {
	SearchCron        *string // cron expression scheduling the search routine, nil disables it
	UpdateCron        *string // cron expression scheduling the update routine, nil disables it
	MaxIssuesCreation int     // 0 means "use the global default"
	ExecutionTimeout  int     // seconds; 0 means "use the global default"
}

// IssueOptions configures how a monitor's issues are identified and
// resolved.
type IssueOptions struct {
	ModelIDKey string // key in an issue's data that uniquely identifies it
	Solvable   bool   // whether is_solved can close the issue automatically
	Unique     bool   // whether only one open issue per ModelIDKey is allowed
}

// PriorityLevels maps each AlertPriority name to the rule-specific
// threshold that should trigger it. A nil pointer means "this level is
// never triggered by this rule".
type PriorityLevels struct {
	Informational *float64
	Low           *float64
	Moderate      *float64
	High          *float64
	Critical      *float64
}

// Get returns the threshold configured for the given priority, or nil if
// that level isn't configured.
func (p PriorityLevels) Get(priority AlertPriority) *float64 {
	switch priority {
	case PriorityInformational:
		return p.Informational
	case PriorityLow:
		return p.Low
	case PriorityModerate:
		return p.Moderate
	case PriorityHigh:
		return p.High
	case PriorityCritical:
		return p.Critical
	default:
		return nil
	}
}

// Rule is implemented by AgeRule, CountRule and ValueRule, the three alert
// priority strategies a monitor's AlertOptions can select.
type Rule interface {
	isRule()
}

// AgeRule derives alert priority from the age (in seconds) of the oldest
// active issue linked to the alert.
type AgeRule struct {
	PriorityLevels PriorityLevels
}

func (AgeRule) isRule() {}

// CountRule derives alert priority from the number of active issues linked
// to the alert.
type CountRule struct {
	PriorityLevels PriorityLevels
}

func (CountRule) isRule() {}

// ValueOperation selects the comparison a ValueRule uses against its
// priority levels.
type ValueOperation string

const (
	OperationGreaterThan ValueOperation = "greater_than"
	OperationLesserThan  ValueOperation = "lesser_than"
)

// ValueRule derives alert priority from a numeric field in the issues'
// data, comparing it to each configured level with Operation.
type ValueRule struct {
	ValueKey       string
	Operation      ValueOperation
	PriorityLevels PriorityLevels
}

func (ValueRule) isRule() {}

// AlertOptions configures how a monitor's alerts compute their priority.
type AlertOptions struct {
	Rule                           Rule
	DismissAcknowledgeOnNewIssues bool
}

// ReactionFunc is a reaction callback, invoked with an events.Envelope's
// event data plus its event_source_id. Errors are logged by the executor's
// reaction handler and do not abort the other reactions for the event.
type ReactionFunc func(payload map[string]any) error

// ReactionOptions lists the reaction callbacks a monitor wants invoked for
// each event name. Event names match internal/events.Name constants.
type ReactionOptions map[string][]ReactionFunc
