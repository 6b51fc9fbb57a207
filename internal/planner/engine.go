// Package planner is the entry point used by the transports. It turns a
// learner visit into a current-week task list, assigning the week on demand.
package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-planner/internal/analytics"
	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/lifecycle"
	"github.com/p-n-ai/pai-planner/internal/scheduler"
	"github.com/p-n-ai/pai-planner/internal/task"
)

const defaultRetryDelay = 50 * time.Millisecond

// EngineConfig holds dependencies for the planner engine.
type EngineConfig struct {
	Catalog    *curriculum.Catalog
	Store      task.Store
	Scheduler  *scheduler.Scheduler // default built from Catalog and Store
	Lifecycle  *lifecycle.Manager   // default built from Catalog and Store
	RetryDelay time.Duration        // wait before retrying a lost assignment (default 50ms)
	Now        func() time.Time
}

// Engine serves learner-facing planner operations.
type Engine struct {
	catalog    *curriculum.Catalog
	store      task.Store
	scheduler  *scheduler.Scheduler
	lifecycle  *lifecycle.Manager
	retryDelay time.Duration
	now        func() time.Time
}

// Week is a learner's current week, sorted by priority.
type Week struct {
	WeekStart time.Time   `json:"week_start"`
	Tasks     []task.Task `json:"tasks"`
	// Assigned is true when this call created the batch.
	Assigned bool `json:"assigned"`
}

// Dashboard is the summary view of the current week.
type Dashboard struct {
	WeekStart time.Time         `json:"week_start"`
	Summary   analytics.Summary `json:"analytics"`
	Tasks     []task.Task       `json:"all_tasks"`
}

// NewEngine creates a planner engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("planner: catalog is required")
	}
	store := cfg.Store
	if store == nil {
		store = task.NewMemoryStore()
	}
	sched := cfg.Scheduler
	if sched == nil {
		s, err := scheduler.New(scheduler.Config{Catalog: cfg.Catalog, Store: store})
		if err != nil {
			return nil, err
		}
		sched = s
	}
	lc := cfg.Lifecycle
	if lc == nil {
		m, err := lifecycle.New(lifecycle.Config{Catalog: cfg.Catalog, Store: store})
		if err != nil {
			return nil, err
		}
		lc = m
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		catalog:    cfg.Catalog,
		store:      store,
		scheduler:  sched,
		lifecycle:  lc,
		retryDelay: delay,
		now:        now,
	}, nil
}

// CurrentTasks returns the learner's tasks for this week, assigning the
// batch first when the week has none.
func (e *Engine) CurrentTasks(ctx context.Context, learnerID string) (Week, error) {
	now := e.now()
	a, err := e.ensureWeek(ctx, learnerID, now)
	if err != nil {
		return Week{}, err
	}
	tasks := a.Tasks
	analytics.SortByPriority(tasks, now)
	return Week{WeekStart: a.WeekStart, Tasks: tasks, Assigned: a.Created}, nil
}

// CurrentTask returns the most pressing pending task. ok is false when every
// task of the week is completed.
func (e *Engine) CurrentTask(ctx context.Context, learnerID string) (task.Task, bool, error) {
	w, err := e.CurrentTasks(ctx, learnerID)
	if err != nil {
		return task.Task{}, false, err
	}
	for _, t := range w.Tasks {
		if !t.Completed {
			return t, true, nil
		}
	}
	return task.Task{}, false, nil
}

// Complete records a task completion.
func (e *Engine) Complete(ctx context.Context, learnerID, taskID string, score *float64, meta map[string]any) (lifecycle.Completion, error) {
	return e.lifecycle.CompleteTask(ctx, learnerID, taskID, score, meta)
}

// CompleteUnit marks a curriculum unit completed outside of a tutorial.
func (e *Engine) CompleteUnit(ctx context.Context, learnerID, unitID string) (task.Progress, error) {
	if _, err := e.store.EnsureProgress(ctx, learnerID); err != nil {
		return task.Progress{}, err
	}
	p, _, err := e.lifecycle.MarkUnitCompleted(ctx, learnerID, unitID)
	return p, err
}

// Dashboard summarizes the current week.
func (e *Engine) Dashboard(ctx context.Context, learnerID string) (Dashboard, error) {
	w, err := e.CurrentTasks(ctx, learnerID)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		WeekStart: w.WeekStart,
		Summary:   analytics.Summarize(w.Tasks, e.now()),
		Tasks:     w.Tasks,
	}, nil
}

// Progress reports curriculum and current-week progress.
func (e *Engine) Progress(ctx context.Context, learnerID string) (analytics.ProgressReport, error) {
	w, err := e.CurrentTasks(ctx, learnerID)
	if err != nil {
		return analytics.ProgressReport{}, err
	}
	p, err := e.store.GetProgress(ctx, learnerID)
	if err != nil {
		return analytics.ProgressReport{}, err
	}
	return analytics.BuildProgressReport(p, e.catalog, analytics.Summarize(w.Tasks, e.now())), nil
}

// Export writes the progress workbook with every task the learner has.
func (e *Engine) Export(ctx context.Context, learnerID string, w io.Writer) error {
	report, err := e.Progress(ctx, learnerID)
	if err != nil {
		return err
	}
	all, err := e.store.GetTasksForLearner(ctx, learnerID, time.Time{})
	if err != nil {
		return err
	}
	return analytics.WriteWorkbook(w, report, all, e.now())
}

// Preview plans the batch the learner would get today without writing
// anything. A non-nil completedUnits replaces the stored completed set.
// Unknown learners preview as new learners.
func (e *Engine) Preview(ctx context.Context, learnerID string, completedUnits []string) ([]task.Task, error) {
	p, err := e.store.GetProgress(ctx, learnerID)
	if errors.Is(err, task.ErrNotFound) {
		p = task.Progress{LearnerID: learnerID}
	} else if err != nil {
		return nil, err
	}
	if completedUnits != nil {
		p.CompletedUnits = completedUnits
	}
	return e.scheduler.Plan(ctx, p, e.now())
}

// ensureWeek creates the learner record and the week batch as needed. An
// assignment lost to a concurrent request is retried once from a fresh read,
// which then finds the winner's batch.
func (e *Engine) ensureWeek(ctx context.Context, learnerID string, now time.Time) (scheduler.Assignment, error) {
	if _, err := e.store.EnsureProgress(ctx, learnerID); err != nil {
		return scheduler.Assignment{}, err
	}
	a, err := e.scheduler.AssignWeeklyTasks(ctx, learnerID, now)
	if !errors.Is(err, task.ErrConflict) {
		return a, err
	}

	slog.Info("assignment lost to concurrent request, retrying", "learner_id", learnerID)
	select {
	case <-ctx.Done():
		return scheduler.Assignment{}, ctx.Err()
	case <-time.After(e.retryDelay):
	}
	return e.scheduler.AssignWeeklyTasks(ctx, learnerID, now)
}
