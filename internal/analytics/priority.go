package analytics

import (
	"cmp"
	"slices"
	"time"

	"github.com/p-n-ai/pai-planner/internal/task"
)

// Priority scores a task for ordering; lower comes first. Overdue tasks lead,
// then pending tasks by calendar days until due and task number, and
// completed tasks trail.
func Priority(t task.Task, now time.Time) int {
	if t.IsOverdue(now) {
		return -1000 + t.TaskNumber
	}
	score := max(0, calendarDaysBetween(now, t.DueDate))*10 + t.TaskNumber
	if t.Completed {
		score += 1000
	}
	return score
}

// SortByPriority orders tasks in place by Priority, breaking ties by task
// number.
func SortByPriority(tasks []task.Task, now time.Time) {
	slices.SortStableFunc(tasks, func(a, b task.Task) int {
		if c := cmp.Compare(Priority(a, now), Priority(b, now)); c != 0 {
			return c
		}
		return cmp.Compare(a.TaskNumber, b.TaskNumber)
	})
}

func calendarDaysBetween(from, to time.Time) int {
	to = to.In(from.Location())
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
