// Package clock provides the cron-schedule primitives the controller and
// monitors loader use to decide when a periodic action is due. It mirrors
// the timing helpers of the original implementation (now/is_triggered/
// time_since/time_until_next_trigger) using github.com/robfig/cron/v3 as
// the standard-cron-expression parser instead of a hand-rolled one.
package clock

import (
	"math"
	"time"

	"github.com/robfig/cron/v3"
)

// standardParser accepts the five-field "minute hour day month weekday"
// form plus the seconds-enabled six-field form, matching what
// config.ControllerProcessSchedule (sub-minute) and the other schedules
// (minute-grained) both need.
var standardParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Clock is the single source of "now" used across the core, so tests can
// substitute a fixed or fake-advancing implementation.
type Clock interface {
	Now() time.Time
}

// Real returns the wall-clock time in the given location.
type Real struct {
	Location *time.Location
}

// NewReal builds a Real clock for the named IANA zone, falling back to UTC
// if the zone is unknown.
func NewReal(timeZone string) *Real {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		loc = time.UTC
	}
	return &Real{Location: loc}
}

func (r *Real) Now() time.Time {
	return time.Now().In(r.Location)
}

// IsTriggered reports whether a cron schedule has fired since lastTrigger,
// evaluated at reference. It computes the schedule's most recent expected
// firing at-or-before reference and compares it against lastTrigger - the
// same comparison the original's is_triggered performs with croniter's
// get_prev. A zero lastTrigger always triggers.
func IsTriggered(schedule string, lastTrigger time.Time, reference time.Time) (bool, error) {
	sched, err := standardParser.Parse(schedule)
	if err != nil {
		return false, err
	}

	lastExpected := prevTrigger(sched, reference)
	return lastTrigger.Before(lastExpected), nil
}

// TimeSince returns the number of seconds since timestamp, relative to
// reference. A zero timestamp (never happened) returns -1, mirroring the
// original's sentinel value for "no timestamp yet".
func TimeSince(timestamp time.Time, reference time.Time) float64 {
	if timestamp.IsZero() {
		return -1
	}
	return reference.Sub(timestamp).Seconds()
}

// TimeUntilNext returns the number of whole seconds until schedule's next
// firing after reference, rounded up.
func TimeUntilNext(schedule string, reference time.Time) (int64, error) {
	sched, err := standardParser.Parse(schedule)
	if err != nil {
		return 0, err
	}
	next := sched.Next(reference)
	seconds := next.Sub(reference).Seconds()
	return int64(math.Ceil(seconds)), nil
}

// prevTrigger finds the most recent time at-or-before reference at which
// sched would have fired. cron.Schedule only exposes Next, so it starts
// from a point a week before reference (doubling that window, up to about
// ten years, while it holds no firing at all) and walks Next() forward
// until the following firing would pass reference.
func prevTrigger(sched cron.Schedule, reference time.Time) time.Time {
	window := 7 * 24 * time.Hour
	for window < 10*365*24*time.Hour && sched.Next(reference.Add(-window)).After(reference) {
		window *= 2
	}
	cursor := reference.Add(-window)
	last := cursor
	for {
		next := sched.Next(cursor)
		if next.After(reference) {
			return last
		}
		last = next
		cursor = next
	}
}
