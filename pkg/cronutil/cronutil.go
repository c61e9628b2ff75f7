// Package cronutil computes a scheduled task's next run time. It is a
// leaf package (no dependency on internal/store or internal/queue) so that
// both the IPC dispatcher (seeding a new or resumed task's next_run_at)
// and the scheduler (recomputing it after each run) can share the exact
// same rule without creating an import cycle between those two packages.
package cronutil

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// Kind mirrors store.ScheduleKind's three values as plain strings, so this
// package never needs to import internal/store.
type Kind string

const (
	Cron     Kind = "cron"
	Interval Kind = "interval"
	Once     Kind = "once"
)

// NextOccurrence computes a schedule's next run time after now. A nil
// result with a nil error means the schedule is exhausted (a "once" task
// whose due time has already passed).
func NextOccurrence(kind Kind, value string, now time.Time, timezone string) (*time.Time, error) {
	switch kind {
	case Once:
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, fmt.Errorf("cronutil: parse once schedule_value: %w", err)
		}
		if !t.After(now) {
			return nil, nil
		}
		return &t, nil
	case Interval:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("cronutil: parse interval schedule_value: %w", err)
		}
		t := now.Add(d)
		return &t, nil
	case Cron:
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			loc = time.UTC
		}
		next, err := gronx.NextTickAfter(value, now.In(loc), false)
		if err != nil {
			return nil, fmt.Errorf("cronutil: compute cron next tick: %w", err)
		}
		return &next, nil
	default:
		return nil, fmt.Errorf("cronutil: unknown schedule kind %q", kind)
	}
}
