package scheduler

import (
	"time"

	"github.com/nanoclaw/orchestrator/internal/store"
	"github.com/nanoclaw/orchestrator/pkg/cronutil"
)

// NextOccurrence computes the next run time for a schedule. Delegates to
// cronutil so the scheduler's post-run recomputation and IPC's initial
// next_run_at (see internal/ipc/dispatch.go) agree on exactly the same
// rule.
func NextOccurrence(kind store.ScheduleKind, value string, now time.Time, timezone string) (*time.Time, error) {
	return cronutil.NextOccurrence(cronutil.Kind(kind), value, now, timezone)
}
