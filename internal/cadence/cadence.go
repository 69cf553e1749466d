// Package cadence decides which period a recurring task belongs to and
// whether a given date is an eligible day for it. Daily-cadence tasks key on
// the calendar date, weekly tasks on the ISO year-week. All boundaries are
// computed in a single canonical time zone so client/server day drift cannot
// split a period.
package cadence

import (
	"errors"
	"fmt"
	"time"

	"github.com/dxia/starshipplan/internal/model"
)

// ErrNotDue signals that the task has no period on the reference date.
// Callers listing "today's" tasks simply omit the task.
var ErrNotDue = errors.New("task not due on this date")

type Resolver struct {
	loc *time.Location
}

// NewResolver creates a Resolver that computes period boundaries in loc.
// A nil loc means server-local time.
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{loc: loc}
}

// IsEligibleDay reports whether ref falls on a day the task can be completed.
// WEEKLY tasks are eligible any day of their week. Daily cadences with a
// weekday set are eligible only on those weekdays; a plain DAILY task with no
// set is eligible every day.
func (r *Resolver) IsEligibleDay(task model.Task, ref time.Time) bool {
	if task.Frequency == model.FreqWeekly {
		return true
	}
	if len(task.Weekdays) == 0 {
		return task.Frequency == model.FreqDaily
	}
	wd := int(ref.In(r.loc).Weekday())
	for _, d := range task.Weekdays {
		if d == wd {
			return true
		}
	}
	return false
}

// PeriodKeyOf returns the canonical key of the period ref belongs to:
// "2006-01-02" for daily cadences, "2006-W02" (ISO year-week) for weekly.
// It returns ErrNotDue when ref is not an eligible day.
func (r *Resolver) PeriodKeyOf(task model.Task, ref time.Time) (string, error) {
	if !r.IsEligibleDay(task, ref) {
		return "", ErrNotDue
	}
	if task.Frequency == model.FreqWeekly {
		return weekKey(ref.In(r.loc)), nil
	}
	return dayKey(ref.In(r.loc)), nil
}

// PreviousPeriodKey returns the key of the eligible period immediately before
// the one ref falls in. For weekly tasks that is the previous ISO week; for
// daily cadences it is the most recent prior eligible calendar day. The bool
// is false when no previous eligible day exists (empty weekday set).
func (r *Resolver) PreviousPeriodKey(task model.Task, ref time.Time) (string, bool) {
	local := ref.In(r.loc)
	if task.Frequency == model.FreqWeekly {
		return weekKey(local.AddDate(0, 0, -7)), true
	}
	// Walk back at most a week; any non-empty weekday set repeats within one.
	for i := 1; i <= 7; i++ {
		prev := local.AddDate(0, 0, -i)
		if r.IsEligibleDay(task, prev) {
			return dayKey(prev), true
		}
	}
	return "", false
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
