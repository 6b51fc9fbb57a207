package task

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProgressDelta is the learner progress change a task mutation produces. It
// is applied in the same transaction as the task update.
type ProgressDelta struct {
	CompletedUnit string
}

// TaskMutation edits t in place. Returning ErrNoChange leaves both the task
// and the learner record untouched.
type TaskMutation func(t *Task) (ProgressDelta, error)

// ProgressMutation edits p in place. Returning ErrNoChange skips the write.
type ProgressMutation func(p *Progress) error

// Store is the durable storage boundary for tasks and learner progress.
type Store interface {
	CreateTask(ctx context.Context, t Task) (string, error)
	// BatchCreateTasks persists all tasks or none.
	BatchCreateTasks(ctx context.Context, tasks []Task) error
	// GetTasksForLearner lists tasks of one week, or all of them when
	// weekStart is zero, ordered by week and task number.
	GetTasksForLearner(ctx context.Context, learnerID string, weekStart time.Time) ([]Task, error)
	GetTask(ctx context.Context, learnerID, taskID string) (Task, error)
	// UpdateTaskCompletion applies mutate and its progress delta atomically.
	UpdateTaskCompletion(ctx context.Context, learnerID, taskID string, mutate TaskMutation) (Task, error)
	GetProgress(ctx context.Context, learnerID string) (Progress, error)
	// EnsureProgress returns the learner record, creating an empty one if needed.
	EnsureProgress(ctx context.Context, learnerID string) (Progress, error)
	// UpdateProgress applies mutate only if the stored version still equals
	// expectedVersion, otherwise it fails with ErrConflict.
	UpdateProgress(ctx context.Context, learnerID string, expectedVersion int64, mutate ProgressMutation) (Progress, error)
	// CommitAssignment advances the week anchor to weekStart and persists
	// tasks in one unit, gated on expectedVersion.
	CommitAssignment(ctx context.Context, learnerID string, expectedVersion int64, weekStart time.Time, tasks []Task) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	tasks    map[string]Task
	learners map[string]Progress
	now      func() time.Time
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]Task),
		learners: make(map[string]Progress),
		now:      time.Now,
	}
}

func (s *MemoryStore) CreateTask(ctx context.Context, t Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := s.BatchCreateTasks(ctx, []Task{t}); err != nil {
		return "", err
	}
	return t.ID, nil
}

func (s *MemoryStore) BatchCreateTasks(_ context.Context, tasks []Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(tasks)
}

func (s *MemoryStore) insertLocked(tasks []Task) error {
	prepared := make([]Task, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		t = t.Clone()
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = s.now()
		}
		if t.Frequency == "" {
			t.Frequency = FrequencyWeekly
		}
		if err := t.Validate(); err != nil {
			return err
		}
		if _, ok := s.learners[t.LearnerID]; !ok {
			return fmt.Errorf("%w: learner %s", ErrNotFound, t.LearnerID)
		}
		slot := fmt.Sprintf("%s/%d/%d", t.LearnerID, t.StartDateOfWeek.Unix(), t.TaskNumber)
		if _, dup := s.tasks[t.ID]; dup || seen[t.ID] || seen[slot] || s.slotTakenLocked(t) {
			return fmt.Errorf("%w: task %s already exists", ErrConflict, t.ID)
		}
		seen[t.ID], seen[slot] = true, true
		prepared = append(prepared, t)
	}
	for _, t := range prepared {
		s.tasks[t.ID] = t
	}
	return nil
}

func (s *MemoryStore) slotTakenLocked(t Task) bool {
	for _, stored := range s.tasks {
		if stored.LearnerID == t.LearnerID && stored.StartDateOfWeek.Equal(t.StartDateOfWeek) && stored.TaskNumber == t.TaskNumber {
			return true
		}
	}
	return false
}

func (s *MemoryStore) GetTasksForLearner(_ context.Context, learnerID string, weekStart time.Time) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Task{}
	for _, t := range s.tasks {
		if t.LearnerID != learnerID {
			continue
		}
		if !weekStart.IsZero() && !t.StartDateOfWeek.Equal(weekStart) {
			continue
		}
		out = append(out, t.Clone())
	}
	SortByWeekAndNumber(out)
	return out, nil
}

func (s *MemoryStore) GetTask(_ context.Context, learnerID, taskID string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[taskID]
	if !ok || t.LearnerID != learnerID {
		return Task{}, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	return t.Clone(), nil
}

func (s *MemoryStore) UpdateTaskCompletion(_ context.Context, learnerID, taskID string, mutate TaskMutation) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tasks[taskID]
	if !ok || stored.LearnerID != learnerID {
		return Task{}, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	progress, ok := s.learners[learnerID]
	if !ok {
		return Task{}, fmt.Errorf("%w: learner %s", ErrNotFound, learnerID)
	}

	t := stored.Clone()
	delta, err := mutate(&t)
	if err != nil {
		if errors.Is(err, ErrNoChange) {
			return stored.Clone(), ErrNoChange
		}
		return Task{}, err
	}

	if delta.CompletedUnit != "" {
		p := progress.Clone()
		if p.AddCompletedUnit(delta.CompletedUnit) {
			p.Version++
			p.UpdatedAt = s.now()
			s.learners[learnerID] = p
		}
	}
	s.tasks[taskID] = t
	return t.Clone(), nil
}

func (s *MemoryStore) GetProgress(_ context.Context, learnerID string) (Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.learners[learnerID]
	if !ok {
		return Progress{}, fmt.Errorf("%w: learner %s", ErrNotFound, learnerID)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) EnsureProgress(_ context.Context, learnerID string) (Progress, error) {
	if learnerID == "" {
		return Progress{}, fmt.Errorf("%w: learner_id is required", ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.learners[learnerID]
	if !ok {
		p = Progress{
			LearnerID:      learnerID,
			CompletedUnits: []string{},
			UpdatedAt:      s.now(),
		}
		s.learners[learnerID] = p
	}
	return p.Clone(), nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, learnerID string, expectedVersion int64, mutate ProgressMutation) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.learners[learnerID]
	if !ok {
		return Progress{}, fmt.Errorf("%w: learner %s", ErrNotFound, learnerID)
	}
	if stored.Version != expectedVersion {
		return Progress{}, fmt.Errorf("%w: learner %s at version %d, expected %d", ErrConflict, learnerID, stored.Version, expectedVersion)
	}

	p := stored.Clone()
	if err := mutate(&p); err != nil {
		if errors.Is(err, ErrNoChange) {
			return stored.Clone(), nil
		}
		return Progress{}, err
	}
	p.LearnerID = learnerID
	p.Version = stored.Version + 1
	p.UpdatedAt = s.now()
	s.learners[learnerID] = p
	return p.Clone(), nil
}

func (s *MemoryStore) CommitAssignment(_ context.Context, learnerID string, expectedVersion int64, weekStart time.Time, tasks []Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.learners[learnerID]
	if !ok {
		return fmt.Errorf("%w: learner %s", ErrNotFound, learnerID)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("%w: learner %s at version %d, expected %d", ErrConflict, learnerID, stored.Version, expectedVersion)
	}
	if stored.CurrentWeekStart != nil && weekStart.Before(*stored.CurrentWeekStart) {
		return fmt.Errorf("%w: week anchor cannot move back from %s to %s",
			ErrValidation, stored.CurrentWeekStart.Format(time.DateOnly), weekStart.Format(time.DateOnly))
	}
	if err := s.insertLocked(tasks); err != nil {
		return err
	}

	p := stored.Clone()
	ws := weekStart
	p.CurrentWeekStart = &ws
	p.Version++
	p.UpdatedAt = s.now()
	s.learners[learnerID] = p
	return nil
}

// SortByWeekAndNumber orders tasks by week anchor, then task number.
func SortByWeekAndNumber(tasks []Task) {
	slices.SortFunc(tasks, func(a, b Task) int {
		if c := a.StartDateOfWeek.Compare(b.StartDateOfWeek); c != 0 {
			return c
		}
		return cmp.Compare(a.TaskNumber, b.TaskNumber)
	})
}
