// Package analytics derives dashboard summaries and progress reports from a
// learner's tasks. Everything here is a pure function of its inputs.
package analytics

import (
	"math"
	"slices"
	"time"

	"github.com/p-n-ai/pai-planner/internal/task"
)

// Summary is the dashboard view of a task set.
type Summary struct {
	Total            int        `json:"total_tasks"`
	Completed        int        `json:"completed_tasks"`
	Pending          int        `json:"pending_tasks"`
	Overdue          int        `json:"overdue_tasks"`
	CompletionRate   float64    `json:"completion_rate"`
	QuizCount        int        `json:"quiz_tasks"`
	TutorialCount    int        `json:"tutorial_tasks"`
	NextTask         *task.Task `json:"next_task"`
	UpcomingDueDates []DueDate  `json:"upcoming_due_dates"`
}

// DueDate annotates a pending task with time remaining. DaysUntilDue is
// negative once the task is overdue.
type DueDate struct {
	TaskID       string    `json:"task_id"`
	TaskNumber   int       `json:"task_number"`
	Title        string    `json:"title"`
	Type         task.Type `json:"type"`
	DueDate      time.Time `json:"due_date"`
	DaysUntilDue int       `json:"days_until_due"`
	IsOverdue    bool      `json:"is_overdue"`
}

// Summarize counts tasks by state and type at now.
func Summarize(tasks []task.Task, now time.Time) Summary {
	s := Summary{Total: len(tasks), UpcomingDueDates: []DueDate{}}

	pending := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		switch t.Type() {
		case task.TypeQuiz:
			s.QuizCount++
		case task.TypeTutorial:
			s.TutorialCount++
		}
		if t.Completed {
			s.Completed++
			continue
		}
		if t.IsOverdue(now) {
			s.Overdue++
		}
		pending = append(pending, t)
	}
	s.Pending = s.Total - s.Completed
	if s.Total > 0 {
		s.CompletionRate = round2(100 * float64(s.Completed) / float64(s.Total))
	}

	slices.SortStableFunc(pending, byDueThenNumber)
	if len(pending) > 0 {
		next := pending[0].Clone()
		s.NextTask = &next
	}
	for _, t := range pending {
		s.UpcomingDueDates = append(s.UpcomingDueDates, DueDate{
			TaskID:       t.ID,
			TaskNumber:   t.TaskNumber,
			Title:        t.Title,
			Type:         t.Type(),
			DueDate:      t.DueDate,
			DaysUntilDue: DaysUntilDue(t, now),
			IsOverdue:    t.IsOverdue(now),
		})
	}
	return s
}

// DaysUntilDue is the ceiling of the days between now and the due date.
func DaysUntilDue(t task.Task, now time.Time) int {
	days := t.DueDate.Sub(now).Hours() / 24
	return int(math.Ceil(days))
}

func byDueThenNumber(a, b task.Task) int {
	if c := a.DueDate.Compare(b.DueDate); c != 0 {
		return c
	}
	return a.TaskNumber - b.TaskNumber
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
