// Package lifecycle applies completion events to tasks and learner progress.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/events"
	"github.com/p-n-ai/pai-planner/internal/platform/metrics"
	"github.com/p-n-ai/pai-planner/internal/task"
)

const defaultMaxRetries = 3

// Config holds dependencies for the lifecycle manager.
type Config struct {
	Catalog    *curriculum.Catalog
	Store      task.Store
	Events     events.Logger
	Metrics    *metrics.Metrics
	MaxRetries int // progress CAS attempts for manual unit completion (default 3)
}

// Manager owns the pending to completed transition of tasks.
type Manager struct {
	catalog    *curriculum.Catalog
	store      task.Store
	events     events.Logger
	metrics    *metrics.Metrics
	maxRetries int
	now        func() time.Time
}

// Completion acknowledges a CompleteTask call. Changed is false when the
// task was already completed.
type Completion struct {
	Task    task.Task `json:"task"`
	Changed bool      `json:"changed"`
}

// New creates a lifecycle manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("lifecycle: catalog is required")
	}
	store := cfg.Store
	if store == nil {
		store = task.NewMemoryStore()
	}
	logger := cfg.Events
	if logger == nil {
		logger = events.Nop{}
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	return &Manager{
		catalog:    cfg.Catalog,
		store:      store,
		events:     logger,
		metrics:    cfg.Metrics,
		maxRetries: retries,
		now:        time.Now,
	}, nil
}

// CompleteTask records an attempt and marks the task completed. Completing an
// already completed task succeeds without changing anything. For tutorials
// the unit joins the learner's completed set in the same store transaction.
func (m *Manager) CompleteTask(ctx context.Context, learnerID, taskID string, score *float64, meta map[string]any) (Completion, error) {
	if learnerID == "" {
		return Completion{}, fmt.Errorf("%w: learner_id is required", task.ErrValidation)
	}
	if _, err := uuid.Parse(taskID); err != nil {
		return Completion{}, fmt.Errorf("%w: malformed task id %q", task.ErrValidation, taskID)
	}
	if score != nil && (math.IsNaN(*score) || *score < 0 || *score > 100) {
		return Completion{}, fmt.Errorf("%w: score must be within [0, 100], got %v", task.ErrValidation, *score)
	}

	now := m.now()
	mutate := func(t *task.Task) (task.ProgressDelta, error) {
		if t.Completed {
			return task.ProgressDelta{}, task.ErrNoChange
		}
		var delta task.ProgressDelta
		if tut, ok := t.Tutorial(); ok {
			if _, known := m.catalog.Unit(tut.UnitID); !known {
				return delta, fmt.Errorf("%w: unknown curriculum unit %q", task.ErrValidation, tut.UnitID)
			}
			delta.CompletedUnit = tut.UnitID
		}

		t.Attempts.Attempts++
		if score != nil && (t.Attempts.BestScore == nil || *score > *t.Attempts.BestScore) {
			best := *score
			t.Attempts.BestScore = &best
		}
		t.Attempts.LastAttempt = &now
		if len(meta) > 0 {
			if t.Attempts.Metadata == nil {
				t.Attempts.Metadata = make(map[string]any, len(meta))
			}
			for k, v := range meta {
				t.Attempts.Metadata[k] = v
			}
		}
		t.Completed = true
		t.CompletedAt = &now
		return delta, nil
	}

	updated, err := m.store.UpdateTaskCompletion(ctx, learnerID, taskID, mutate)
	switch {
	case errors.Is(err, task.ErrNoChange):
		m.metrics.Completion(string(updated.Type()), metrics.OutcomeNoop)
		return Completion{Task: updated, Changed: false}, nil
	case err != nil:
		m.metrics.Completion("", metrics.OutcomeFailed)
		return Completion{}, err
	}

	m.metrics.Completion(string(updated.Type()), metrics.OutcomeCompleted)
	slog.Info("task completed",
		"learner_id", learnerID,
		"task_id", taskID,
		"type", updated.Type(),
		"attempts", updated.Attempts.Attempts,
	)

	data := map[string]any{"type": string(updated.Type())}
	if score != nil {
		data["score"] = *score
	}
	m.logEvent(ctx, events.Event{
		LearnerID: learnerID,
		TaskID:    taskID,
		EventType: events.TypeTaskCompleted,
		Data:      data,
		CreatedAt: now,
	})
	if tut, ok := updated.Tutorial(); ok {
		m.logEvent(ctx, events.Event{
			LearnerID: learnerID,
			TaskID:    taskID,
			EventType: events.TypeUnitCompleted,
			Data:      map[string]any{"unit_id": tut.UnitID},
			CreatedAt: now,
		})
	}
	return Completion{Task: updated, Changed: true}, nil
}

// MarkUnitCompleted adds a unit to the learner's completed set outside of
// any task. It reports whether the set changed.
func (m *Manager) MarkUnitCompleted(ctx context.Context, learnerID, unitID string) (task.Progress, bool, error) {
	if _, ok := m.catalog.Unit(unitID); !ok {
		return task.Progress{}, false, fmt.Errorf("%w: unknown curriculum unit %q", task.ErrValidation, unitID)
	}

	var lastErr error
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		p, err := m.store.GetProgress(ctx, learnerID)
		if err != nil {
			return task.Progress{}, false, err
		}
		if p.HasCompleted(unitID) {
			return p, false, nil
		}

		updated, err := m.store.UpdateProgress(ctx, learnerID, p.Version, func(p *task.Progress) error {
			if !p.AddCompletedUnit(unitID) {
				return task.ErrNoChange
			}
			return nil
		})
		if errors.Is(err, task.ErrConflict) {
			lastErr = err
			slog.Debug("unit completion lost race, retrying",
				"learner_id", learnerID,
				"unit_id", unitID,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return task.Progress{}, false, err
		}

		m.logEvent(ctx, events.Event{
			LearnerID: learnerID,
			EventType: events.TypeUnitCompleted,
			Data:      map[string]any{"unit_id": unitID, "manual": true},
		})
		return updated, true, nil
	}
	return task.Progress{}, false, lastErr
}

func (m *Manager) logEvent(ctx context.Context, e events.Event) {
	if err := m.events.LogEvent(ctx, e); err != nil {
		slog.Warn("failed to log event", "type", e.EventType, "learner_id", e.LearnerID, "error", err)
	}
}
