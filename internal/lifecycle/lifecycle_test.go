package lifecycle_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/events"
	"github.com/p-n-ai/pai-planner/internal/lifecycle"
	"github.com/p-n-ai/pai-planner/internal/task"
)

var weekStart = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store   *task.MemoryStore
	events  *events.Memory
	manager *lifecycle.Manager
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	catalog, err := curriculum.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	f := fixture{store: task.NewMemoryStore(), events: events.NewMemory()}
	f.manager, err = lifecycle.New(lifecycle.Config{Catalog: catalog, Store: f.store, Events: f.events})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := f.store.EnsureProgress(context.Background(), "learner-1"); err != nil {
		t.Fatalf("EnsureProgress() error = %v", err)
	}
	return f
}

func (f fixture) create(t *testing.T, number int, attrs task.Attributes) string {
	t.Helper()
	id, err := f.store.CreateTask(context.Background(), task.Task{
		LearnerID:       "learner-1",
		Title:           "task",
		DueDate:         task.EndOfDay(weekStart.AddDate(0, 0, number-1)),
		TaskNumber:      number,
		StartDateOfWeek: weekStart,
		Attributes:      attrs,
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	return id
}

func quiz() task.Attributes {
	return task.QuizAttributes{FacetID: "math|algebra|11", Tags: []string{"a"}, NumQuestions: 10}
}

func tutorial(unit string) task.Attributes {
	return task.TutorialAttributes{UnitID: unit, UnitTitle: unit, EstimatedDurationMinutes: 30}
}

func score(v float64) *float64 { return &v }

func TestNew_RequiresCatalog(t *testing.T) {
	if _, err := lifecycle.New(lifecycle.Config{}); err == nil {
		t.Fatal("New() without catalog should return error")
	}
}

func TestCompleteTask_Quiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 1, quiz())

	got, err := f.manager.CompleteTask(ctx, "learner-1", id, score(82.5), map[string]any{"correct": 8})
	if err != nil {
		t.Fatalf("CompleteTask() error = %v", err)
	}
	if !got.Changed {
		t.Error("Changed = false, want true")
	}

	stored, err := f.store.GetTask(ctx, "learner-1", id)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	// Score and completion are visible together.
	if !stored.Completed || stored.Attempts.BestScore == nil || *stored.Attempts.BestScore != 82.5 {
		t.Errorf("stored task = completed %v, best %v", stored.Completed, stored.Attempts.BestScore)
	}
	if stored.Attempts.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", stored.Attempts.Attempts)
	}
	if stored.CompletedAt == nil || stored.Attempts.LastAttempt == nil {
		t.Error("CompletedAt and LastAttempt should be set")
	}
	if stored.Attempts.Metadata["correct"] != 8 {
		t.Errorf("Metadata = %v", stored.Attempts.Metadata)
	}

	evs := f.events.Events()
	if len(evs) != 1 || evs[0].EventType != events.TypeTaskCompleted {
		t.Errorf("events = %+v, want one task_completed", evs)
	}
}

func TestCompleteTask_TutorialAddsUnitOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 1, tutorial("chapter_2"))

	first, err := f.manager.CompleteTask(ctx, "learner-1", id, nil, nil)
	if err != nil {
		t.Fatalf("CompleteTask() error = %v", err)
	}
	if !first.Changed {
		t.Error("first completion should change the task")
	}
	if first.Task.Attempts.BestScore != nil {
		t.Errorf("BestScore = %v, want nil without a score", *first.Task.Attempts.BestScore)
	}

	second, err := f.manager.CompleteTask(ctx, "learner-1", id, score(100), nil)
	if err != nil {
		t.Fatalf("CompleteTask() repeat error = %v", err)
	}
	if second.Changed {
		t.Error("repeat completion should be a no-op")
	}
	if second.Task.Attempts.Attempts != 1 {
		t.Errorf("Attempts = %d after repeat, want 1", second.Task.Attempts.Attempts)
	}

	p, _ := f.store.GetProgress(ctx, "learner-1")
	if len(p.CompletedUnits) != 1 || p.CompletedUnits[0] != "chapter_2" {
		t.Errorf("CompletedUnits = %v, want [chapter_2]", p.CompletedUnits)
	}

	var types []string
	for _, e := range f.events.Events() {
		types = append(types, e.EventType)
	}
	if len(types) != 2 || types[0] != events.TypeTaskCompleted || types[1] != events.TypeUnitCompleted {
		t.Errorf("event types = %v", types)
	}
}

func TestCompleteTask_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quizID := f.create(t, 1, quiz())
	unknownUnit := f.create(t, 2, tutorial("chapter_99"))
	if _, err := f.store.EnsureProgress(ctx, "learner-2"); err != nil {
		t.Fatalf("EnsureProgress() error = %v", err)
	}

	tests := []struct {
		name    string
		learner string
		taskID  string
		score   *float64
		want    error
	}{
		{"malformed task id", "learner-1", "task-1", nil, task.ErrValidation},
		{"missing learner id", "", quizID, nil, task.ErrValidation},
		{"score too high", "learner-1", quizID, score(100.5), task.ErrValidation},
		{"negative score", "learner-1", quizID, score(-1), task.ErrValidation},
		{"NaN score", "learner-1", quizID, score(math.NaN()), task.ErrValidation},
		{"unknown unit", "learner-1", unknownUnit, nil, task.ErrValidation},
		{"other learner", "learner-2", quizID, nil, task.ErrNotFound},
		{"missing task", "learner-1", "00000000-0000-0000-0000-000000000001", nil, task.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.CompleteTask(ctx, tt.learner, tt.taskID, tt.score, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("CompleteTask() error = %v, want %v", err, tt.want)
			}
		})
	}

	// Nothing was written by the rejected calls.
	stored, _ := f.store.GetTask(ctx, "learner-1", quizID)
	if stored.Completed || stored.Attempts.Attempts != 0 {
		t.Errorf("rejected calls changed the task: %+v", stored.Attempts)
	}
	stored, _ = f.store.GetTask(ctx, "learner-1", unknownUnit)
	if stored.Completed {
		t.Error("unknown unit tutorial should stay pending")
	}
}

func TestCompleteTask_ConcurrentTutorials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	units := []string{"chapter_1", "chapter_2", "chapter_3", "chapter_4", "chapter_5"}
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = f.create(t, i+1, tutorial(u))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.manager.CompleteTask(ctx, "learner-1", id, score(75), nil); err != nil {
				t.Errorf("CompleteTask() error = %v", err)
			}
		}(id)
	}
	wg.Wait()

	p, _ := f.store.GetProgress(ctx, "learner-1")
	if len(p.CompletedUnits) != len(units) {
		t.Errorf("CompletedUnits = %v, want all %d units", p.CompletedUnits, len(units))
	}
	for _, u := range units {
		if !p.HasCompleted(u) {
			t.Errorf("missing unit %s", u)
		}
	}
}

func TestMarkUnitCompleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, changed, err := f.manager.MarkUnitCompleted(ctx, "learner-1", "chapter_1")
	if err != nil {
		t.Fatalf("MarkUnitCompleted() error = %v", err)
	}
	if !changed || !p.HasCompleted("chapter_1") {
		t.Errorf("MarkUnitCompleted() = %+v, changed %v", p, changed)
	}

	_, changed, err = f.manager.MarkUnitCompleted(ctx, "learner-1", "chapter_1")
	if err != nil {
		t.Fatalf("MarkUnitCompleted() repeat error = %v", err)
	}
	if changed {
		t.Error("repeat MarkUnitCompleted() should not change the set")
	}

	if _, _, err := f.manager.MarkUnitCompleted(ctx, "learner-1", "chapter_99"); !errors.Is(err, task.ErrValidation) {
		t.Errorf("MarkUnitCompleted(unknown) error = %v, want ErrValidation", err)
	}
	if _, _, err := f.manager.MarkUnitCompleted(ctx, "ghost", "chapter_1"); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("MarkUnitCompleted(ghost) error = %v, want ErrNotFound", err)
	}
}

// racingStore bumps the learner version once before the first update so
// the manager has to retry.
type racingStore struct {
	*task.MemoryStore
	raced bool
}

func (s *racingStore) UpdateProgress(ctx context.Context, learnerID string, expectedVersion int64, mutate task.ProgressMutation) (task.Progress, error) {
	if !s.raced {
		s.raced = true
		if _, err := s.MemoryStore.UpdateProgress(ctx, learnerID, expectedVersion, func(p *task.Progress) error {
			p.AddCompletedUnit("chapter_5")
			return nil
		}); err != nil {
			return task.Progress{}, err
		}
	}
	return s.MemoryStore.UpdateProgress(ctx, learnerID, expectedVersion, mutate)
}

func TestMarkUnitCompleted_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	catalog, _ := curriculum.LoadDefault()
	store := &racingStore{MemoryStore: task.NewMemoryStore()}
	if _, err := store.EnsureProgress(ctx, "learner-1"); err != nil {
		t.Fatalf("EnsureProgress() error = %v", err)
	}
	m, err := lifecycle.New(lifecycle.Config{Catalog: catalog, Store: store})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	p, changed, err := m.MarkUnitCompleted(ctx, "learner-1", "chapter_1")
	if err != nil {
		t.Fatalf("MarkUnitCompleted() error = %v", err)
	}
	if !changed {
		t.Error("changed = false, want true")
	}
	if !p.HasCompleted("chapter_1") || !p.HasCompleted("chapter_5") {
		t.Errorf("CompletedUnits = %v, want both the racing and the retried unit", p.CompletedUnits)
	}
}
