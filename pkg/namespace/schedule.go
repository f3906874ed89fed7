package namespace

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Interval converts the definition's schedule into the fixed delay between
// the end of one refresh and the start of the next. A zero interval means
// the namespace is refreshed exactly once and never rescheduled.
func (d *Definition) Interval() (time.Duration, error) {
	return parseScheduleInterval(d.Schedule)
}

// parseScheduleInterval converts a schedule string to a duration.
// Supports "@every 30s" style descriptors, standard cron expressions
// (interval taken between two consecutive fires), and ""/"0" for run-once.
func parseScheduleInterval(schedule string) (time.Duration, error) {
	if schedule == "" || schedule == "0" {
		return 0, nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule format: %w", err)
	}

	if strings.HasPrefix(schedule, "@every ") {
		duration, err := time.ParseDuration(strings.TrimPrefix(schedule, "@every "))
		if err != nil {
			return 0, fmt.Errorf("failed to parse @every duration: %w", err)
		}
		return duration, nil
	}

	// For cron expressions, derive the interval from two consecutive fires
	now := time.Now()
	next1 := sched.Next(now)
	next2 := sched.Next(next1)

	return next2.Sub(next1), nil
}
