package domain

import "time"

// IssueStatus is an Issue's lifecycle state.
type IssueStatus string

const (
	IssueActive  IssueStatus = "active"
	IssueDropped IssueStatus = "dropped"
	IssueSolved  IssueStatus = "solved"
)

// Issue is one occurrence of a problem a monitor's search routine found.
// ModelID is the value of the monitor's IssueOptions.ModelIDKey field in
// Data, used to recognize the "same" issue across search runs.
type Issue struct {
	ID        int64
	MonitorID int64
	AlertID   *int64
	ModelID   string
	Status    IssueStatus
	Data      map[string]any
	CreatedAt time.Time
	SolvedAt  time.Time
	DroppedAt time.Time
}

// LinkToAlert links the issue to an alert, returning the event name to
// raise ("issue_linked") or "" if the issue isn't active.
func (i *Issue) LinkToAlert(alertID int64) string {
	if i.Status != IssueActive {
		return ""
	}
	i.AlertID = &alertID
	return "issue_linked"
}

// Drop marks the issue dropped, returning "issue_dropped" or "" if the
// issue isn't active.
func (i *Issue) Drop(now time.Time) string {
	if i.Status != IssueActive {
		return ""
	}
	i.Status = IssueDropped
	i.DroppedAt = now
	return "issue_dropped"
}

// Solve marks the issue solved, returning "issue_solved" or "" if the
// issue isn't active.
func (i *Issue) Solve(now time.Time) string {
	if i.Status != IssueActive {
		return ""
	}
	i.Status = IssueSolved
	i.SolvedAt = now
	return "issue_solved"
}

// UpdateData replaces the issue's data, returning the event name to raise.
// The original distinguishes between an update that leaves the issue
// solved versus not, so reactions can treat them differently; isSolved is
// evaluated by the caller against the *new* data via the monitor's
// is_solved function, since that is monitor code domain has no access to.
func (i *Issue) UpdateData(data map[string]any, isSolved bool) string {
	if i.Status != IssueActive {
		return ""
	}
	i.Data = data
	if isSolved {
		return "issue_updated_solved"
	}
	return "issue_updated_not_solved"
}
