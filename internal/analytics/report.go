package analytics

import (
	"time"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/task"
)

// UnitProgress summarizes curriculum progression.
type UnitProgress struct {
	Completed     int      `json:"completed"`
	Total         int      `json:"total"`
	Percentage    float64  `json:"percentage"`
	CompletedList []string `json:"completed_list"`
	NextUnit      *string  `json:"next_chapter"`
}

// ProgressReport is a learner's overall progress.
type ProgressReport struct {
	LearnerID        string       `json:"learner_id"`
	Units            UnitProgress `json:"chapters"`
	Tasks            Summary      `json:"task_analytics"`
	CurrentWeekStart *time.Time   `json:"current_week_start"`
}

// BuildProgressReport combines the learner record, the catalog and a task
// summary.
func BuildProgressReport(p task.Progress, catalog *curriculum.Catalog, summary Summary) ProgressReport {
	units := catalog.Units()
	done := catalog.CompletedCount(p.CompletedUnits)

	up := UnitProgress{
		Completed:     done,
		Total:         len(units),
		CompletedList: append([]string{}, p.CompletedUnits...),
	}
	if up.Total > 0 {
		up.Percentage = round2(100 * float64(done) / float64(up.Total))
	}
	if next, ok := catalog.NextUnit(p.CompletedUnits); ok {
		id := next.ID
		up.NextUnit = &id
	}

	return ProgressReport{
		LearnerID:        p.LearnerID,
		Units:            up,
		Tasks:            summary,
		CurrentWeekStart: p.CurrentWeekStart,
	}
}
