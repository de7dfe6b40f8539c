package domain

import "time"

// AlertPriority is the severity level of an Alert. Lower numbers are more
// severe - critical (1) outranks informational (5).
type AlertPriority int

const (
	PriorityCritical      AlertPriority = 1
	PriorityHigh          AlertPriority = 2
	PriorityModerate      AlertPriority = 3
	PriorityLow           AlertPriority = 4
	PriorityInformational AlertPriority = 5
)

// orderedPriorities lists every level from most to least severe, the order
// CalculatePriority's rule checks walk so the first (most severe) match wins.
var orderedPriorities = []AlertPriority{
	PriorityCritical, PriorityHigh, PriorityModerate, PriorityLow, PriorityInformational,
}

// IssueAgeSeconds is the minimal view of an issue CalculatePriority needs:
// its creation time and its data payload, so the domain package doesn't
// need to depend on how issues are stored.
type IssueAgeSeconds struct {
	CreatedAt time.Time
	Data      map[string]any
}

// CalculatePriority computes the alert priority a Rule yields for the
// given active issues, evaluated at reference time. It returns nil when no
// configured threshold is exceeded - the caller should then fall back to
// PriorityLow, matching the original's behavior.
func CalculatePriority(rule Rule, issues []IssueAgeSeconds, reference time.Time) *AlertPriority {
	switch r := rule.(type) {
	case AgeRule:
		return calculateAgeRule(r, issues, reference)
	case CountRule:
		return calculateCountRule(r, issues)
	case ValueRule:
		return calculateValueRule(r, issues)
	default:
		return nil
	}
}

func calculateAgeRule(rule AgeRule, issues []IssueAgeSeconds, reference time.Time) *AlertPriority {
	ages := make([]float64, len(issues))
	for i, issue := range issues {
		ages[i] = reference.Sub(issue.CreatedAt).Seconds()
	}

	for _, priority := range orderedPriorities {
		threshold := rule.PriorityLevels.Get(priority)
		if threshold == nil {
			continue
		}
		for _, age := range ages {
			if age > *threshold {
				p := priority
				return &p
			}
		}
	}
	return nil
}

func calculateCountRule(rule CountRule, issues []IssueAgeSeconds) *AlertPriority {
	count := float64(len(issues))

	for _, priority := range orderedPriorities {
		threshold := rule.PriorityLevels.Get(priority)
		if threshold == nil {
			continue
		}
		if count > *threshold {
			p := priority
			return &p
		}
	}
	return nil
}

func calculateValueRule(rule ValueRule, issues []IssueAgeSeconds) *AlertPriority {
	values := make([]float64, 0, len(issues))
	for _, issue := range issues {
		raw, ok := issue.Data[rule.ValueKey]
		if !ok {
			continue
		}
		v, ok := toFloat(raw)
		if !ok {
			continue
		}
		values = append(values, v)
	}

	compare := func(value, threshold float64) bool {
		if rule.Operation == OperationLesserThan {
			return value < threshold
		}
		return value > threshold
	}

	for _, priority := range orderedPriorities {
		threshold := rule.PriorityLevels.Get(priority)
		if threshold == nil {
			continue
		}
		for _, value := range values {
			if compare(value, *threshold) {
				p := priority
				return &p
			}
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
