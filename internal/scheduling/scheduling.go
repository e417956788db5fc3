// Package scheduling resolves the keep-alive sweeper's poll interval from a
// cron expression, falling back to a fixed 5-second period.
package scheduling

import (
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is the 5-second poll period ResolveInterval returns when
// the cron expression is empty or yields no usable next run.
const DefaultInterval = 5 * time.Second

// ResolveInterval returns the duration until the next sweep.
//
// cronExpr, when non-empty, is parsed as a standard 5-field cron expression
// (KEEP_ALIVE_POLL_INTERVAL_CRON) and the duration until its next occurrence
// after now is returned. An empty cronExpr falls back to DefaultInterval. A
// malformed cronExpr also falls back to DefaultInterval rather than failing
// startup, since the sweeper's correctness does not depend on the override.
func ResolveInterval(cronExpr string, now time.Time) time.Duration {
	if cronExpr == "" {
		return DefaultInterval
	}

	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return DefaultInterval
	}

	next := schedule.Next(now)
	if next.IsZero() {
		return DefaultInterval
	}

	until := next.Sub(now)
	if until <= 0 {
		return DefaultInterval
	}
	return until
}
