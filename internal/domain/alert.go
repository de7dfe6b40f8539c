package domain

import "time"

// AlertStatus is an Alert's lifecycle state.
type AlertStatus string

const (
	AlertActive AlertStatus = "active"
	AlertSolved AlertStatus = "solved"
)

// Alert groups one or more active Issues under a single, prioritized,
// acknowledgeable unit a human responds to.
type Alert struct {
	ID                  int64
	MonitorID           int64
	Status              AlertStatus
	Acknowledged        bool
	Locked              bool
	Priority            AlertPriority
	AcknowledgePriority *AlertPriority
	CreatedAt           time.Time
	SolvedAt            time.Time
}

// NewAlert builds a freshly created alert at PriorityLow, mirroring
// the original's insert_default=AlertPriority.low.
func NewAlert(monitorID int64, now time.Time) Alert {
	return Alert{
		MonitorID: monitorID,
		Status:    AlertActive,
		Priority:  PriorityLow,
		CreatedAt: now,
	}
}

// IsPriorityAcknowledged reports whether the current priority is covered
// by a prior acknowledgement - true only if the alert was acknowledged at
// a priority at least as severe (numerically <=) as the current one.
func (a Alert) IsPriorityAcknowledged() bool {
	if !a.Acknowledged || a.AcknowledgePriority == nil {
		return false
	}
	return *a.AcknowledgePriority <= a.Priority
}

// UpdatePriority recomputes the alert's priority from rule and its active
// issues, returning the new priority and the event name to raise ("" if
// unchanged). Falls back to PriorityLow when the rule doesn't match any
// configured threshold.
func (a *Alert) UpdatePriority(rule Rule, issues []IssueAgeSeconds, now time.Time) (eventName string, previous AlertPriority) {
	previous = a.Priority

	newPriority := CalculatePriority(rule, issues, now)
	resolved := PriorityLow
	if newPriority != nil {
		resolved = *newPriority
	}

	if resolved == previous {
		return "", previous
	}

	a.Priority = resolved
	if resolved < previous {
		return "alert_priority_increased", previous
	}
	return "alert_priority_decreased", previous
}

// CanLinkIssues reports whether issues may be linked right now (active,
// unlocked, non-empty). Issue linkage itself is performed by the store
// layer across each issue, since it needs to persist each issue.
func (a Alert) CanLinkIssues(issues []Issue) bool {
	return a.Status == AlertActive && !a.Locked && len(issues) > 0
}

// Acknowledge acknowledges the alert at its current priority, returning
// true if it changed state (false if not active, or if an earlier
// acknowledgement already covers the current priority - see
// IsPriorityAcknowledged).
func (a *Alert) Acknowledge(now time.Time) bool {
	if a.Status != AlertActive || a.IsPriorityAcknowledged() {
		return false
	}
	a.Acknowledged = true
	priority := a.Priority
	a.AcknowledgePriority = &priority
	return true
}

// DismissAcknowledge clears the alert's acknowledgement, returning true if
// it changed anything.
func (a *Alert) DismissAcknowledge() bool {
	if a.Status != AlertActive || !a.Acknowledged {
		return false
	}
	a.Acknowledged = false
	a.AcknowledgePriority = nil
	return true
}

// Lock prevents further issues from being linked, returning true if it
// changed anything.
func (a *Alert) Lock() bool {
	if a.Status != AlertActive || a.Locked {
		return false
	}
	a.Locked = true
	return true
}

// Unlock re-allows linking issues, returning true if it changed anything.
func (a *Alert) Unlock() bool {
	if a.Status != AlertActive || !a.Locked {
		return false
	}
	a.Locked = false
	return true
}

// Solve marks the alert solved, returning true if it changed anything.
func (a *Alert) Solve(now time.Time) bool {
	if a.Status != AlertActive {
		return false
	}
	a.Status = AlertSolved
	a.SolvedAt = now
	return true
}
