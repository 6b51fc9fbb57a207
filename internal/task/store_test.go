package task_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-planner/internal/task"
)

var weekStart = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

func quizTask(learnerID string, number int) task.Task {
	return task.Task{
		LearnerID:       learnerID,
		Subject:         task.SubjectMath,
		Title:           "Algebra Quiz",
		Description:     "Complete a quiz.",
		DueDate:         task.EndOfDay(weekStart.AddDate(0, 0, number-1)),
		TaskNumber:      number,
		StartDateOfWeek: weekStart,
		Attributes: task.QuizAttributes{
			FacetID:         "math|algebra|11",
			Tags:            []string{"linear-equations", "systems"},
			NumQuestions:    10,
			DifficultyLevel: 3,
			DurationMinutes: 10,
			PassingScore:    70,
		},
	}
}

func tutorialTask(learnerID string, number int, unitID string) task.Task {
	return task.Task{
		LearnerID:       learnerID,
		Subject:         task.SubjectMath,
		Title:           "AI Tutorial: " + unitID,
		DueDate:         task.EndOfDay(weekStart.AddDate(0, 0, number-1)),
		TaskNumber:      number,
		StartDateOfWeek: weekStart,
		Attributes: task.TutorialAttributes{
			UnitID:                   unitID,
			UnitTitle:                unitID,
			EstimatedDurationMinutes: 30,
		},
	}
}

func complete(score float64) task.TaskMutation {
	return func(t *task.Task) (task.ProgressDelta, error) {
		if t.Completed {
			return task.ProgressDelta{}, task.ErrNoChange
		}
		now := time.Date(2026, 10, 13, 9, 0, 0, 0, time.UTC)
		t.Completed = true
		t.CompletedAt = &now
		t.Attempts.Attempts++
		t.Attempts.BestScore = &score
		var delta task.ProgressDelta
		if tut, ok := t.Tutorial(); ok {
			delta.CompletedUnit = tut.UnitID
		}
		return delta, nil
	}
}

// runStoreContract exercises behaviour shared by every Store implementation.
func runStoreContract(t *testing.T, newStore func(t *testing.T) task.Store) {
	ctx := context.Background()

	t.Run("EnsureProgress creates empty record", func(t *testing.T) {
		s := newStore(t)
		p, err := s.EnsureProgress(ctx, "learner-1")
		if err != nil {
			t.Fatalf("EnsureProgress() error = %v", err)
		}
		if p.LearnerID != "learner-1" || len(p.CompletedUnits) != 0 || p.CurrentWeekStart != nil {
			t.Errorf("EnsureProgress() = %+v, want empty record", p)
		}

		again, err := s.EnsureProgress(ctx, "learner-1")
		if err != nil {
			t.Fatalf("EnsureProgress() second call error = %v", err)
		}
		if again.Version != p.Version {
			t.Errorf("EnsureProgress() should not bump version, got %d want %d", again.Version, p.Version)
		}
	})

	t.Run("GetProgress unknown learner", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetProgress(ctx, "ghost"); !errors.Is(err, task.ErrNotFound) {
			t.Errorf("GetProgress() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("CreateTask and GetTask", func(t *testing.T) {
		s := newStore(t)
		mustEnsure(t, s, "learner-1")

		id, err := s.CreateTask(ctx, quizTask("learner-1", 1))
		if err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
		if id == "" {
			t.Fatal("CreateTask() returned empty ID")
		}

		got, err := s.GetTask(ctx, "learner-1", id)
		if err != nil {
			t.Fatalf("GetTask() error = %v", err)
		}
		q, ok := got.Quiz()
		if !ok {
			t.Fatalf("GetTask() attributes = %T, want quiz", got.Attributes)
		}
		if len(q.Tags) != 2 || q.Tags[0] != "linear-equations" {
			t.Errorf("Tags = %v", q.Tags)
		}
		if got.Frequency != task.FrequencyWeekly {
			t.Errorf("Frequency = %q, want weekly", got.Frequency)
		}
		if !got.StartDateOfWeek.Equal(weekStart) {
			t.Errorf("StartDateOfWeek = %v, want %v", got.StartDateOfWeek, weekStart)
		}
	})

	t.Run("GetTask wrong learner", func(t *testing.T) {
		s := newStore(t)
		mustEnsure(t, s, "learner-1")
		mustEnsure(t, s, "learner-2")

		id, err := s.CreateTask(ctx, quizTask("learner-1", 1))
		if err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
		if _, err := s.GetTask(ctx, "learner-2", id); !errors.Is(err, task.ErrNotFound) {
			t.Errorf("GetTask() error = %v, want ErrNotFound", err)
		}
		if _, err := s.GetTask(ctx, "learner-1", "not-a-uuid"); !errors.Is(err, task.ErrNotFound) {
			t.Errorf("GetTask(malformed) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("BatchCreateTasks is all or nothing", func(t *testing.T) {
		s := newStore(t)
		mustEnsure(t, s, "learner-1")

		batch := []task.Task{
			quizTask("learner-1", 1),
			quizTask("learner-1", 2),
			quizTask("learner-1", 2), // duplicate slot
		}
		if err := s.BatchCreateTasks(ctx, batch); !errors.Is(err, task.ErrConflict) {
			t.Fatalf("BatchCreateTasks() error = %v, want ErrConflict", err)
		}

		tasks, err := s.GetTasksForLearner(ctx, "learner-1", time.Time{})
		if err != nil {
			t.Fatalf("GetTasksForLearner() error = %v", err)
		}
		if len(tasks) != 0 {
			t.Errorf("GetTasksForLearner() len = %d, want 0 after failed batch", len(tasks))
		}
	})

	t.Run("BatchCreateTasks rejects invalid task", func(t *testing.T) {
		s := newStore(t)
		mustEnsure(t, s, "learner-1")

		bad := quizTask("learner-1", 2)
		bad.DueDate = weekStart.AddDate(0, 0, 8)
		err := s.BatchCreateTasks(ctx, []task.Task{quizTask("learner-1", 1), bad})
		if !errors.Is(err, task.ErrValidation) {
			t.Fatalf("BatchCreateTasks() error = %v, want ErrValidation", err)
		}
	})

	t.Run("GetTasksForLearner filters by week and orders by number", func(t *testing.T) {
		s := newStore(t)
		mustEnsure(t, s, "learner-1")

		prev := quizTask("learner-1", 1)
		prev.StartDateOfWeek = weekStart.AddDate(0, 0, -7)
		prev.DueDate = task.EndOfDay(prev.StartDateOfWeek)

		batch := []task.Task{quizTask("learner-1", 3), quizTask("learner-1", 1), quizTask("learner-1", 2), prev}
		if err := s.BatchCreateTasks(ctx, batch); err != nil {
			t.Fatalf("BatchCreateTasks() error = %v", err)
		}

		week, err := s.GetTasksForLearner(ctx, "learner-1", weekStart)
		if err != nil {
			t.Fatalf("GetTasksForLearner() error = %v", err)
		}
		if len(week) != 3 {
			t.Fatalf("week tasks = %d, want 3", len(week))
		}
		for i, tk := range week {
			if tk.TaskNumber != i+1 {
				t.Errorf("week[%d].TaskNumber = %d, want %d", i, tk.TaskNumber, i+1)
			}
		}

		all, err := s.GetTasksForLearner(ctx, "learner-1", time.Time{})
		if err != nil {
			t.Fatalf("GetTasksForLearner(all) error = %v", err)
		}
		if len(all) != 4 {
			t.Errorf("all tasks = %d, want 4", len(all))
		}
		if !all[0].StartDateOfWeek.Equal(prev.StartDateOfWeek) {
			t.Errorf("all[0] should be from the previous week")
		}
	})

	t.Run("UpdateTaskCompletion applies task and unit together", func(t *testing.T) {
		s := newStore(t)
		mustEnsure(t, s, "learner-1")

		id, err := s.CreateTask(ctx, tutorialTask("learner-1", 1, "chapter_2"))
		if err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}

		got, err := s.UpdateTaskCompletion(ctx, "learner-1", id, complete(85))
		if err != nil {
			t.Fatalf("UpdateTaskCompletion() error = %v", err)
		}
		if !got.Completed || got.Attempts.Attempts != 1 || got.Attempts.BestScore == nil || *got.Attempts.BestScore != 85 {
			t.Errorf("UpdateTaskCompletion() = %+v", got)
		}

		p, err := s.GetProgress(ctx, "learner-1")
		if err != nil {
			t.Fatalf("GetProgress() error = %v", err)
		}
		if !p.HasCompleted("chapter_2") {
			t.Errorf("CompletedUnits = %v, want chapter_2", p.CompletedUnits)
		}

		again, err := s.UpdateTaskCompletion(ctx, "learner-1", id, complete(99))
		if !errors.Is(err, task.ErrNoChange) {
			t.Fatalf("UpdateTaskCompletion() repeat error = %v, want ErrNoChange", err)
		}
		if again.Attempts.Attempts != 1 || *again.Attempts.BestScore != 85 {
			t.Errorf("repeat completion changed attempts: %+v", again.Attempts)
		}

		p2, _ := s.GetProgress(ctx, "learner-1")
		if len(p2.CompletedUnits) != 1 {
			t.Errorf("CompletedUnits = %v, want one entry", p2.CompletedUnits)
		}
	})

	t.Run("UpdateTaskCompletion unknown task", func(t *testing.T) {
		s := newStore(t)
		mustEnsure(t, s, "learner-1")
		_, err := s.UpdateTaskCompletion(ctx, "learner-1", "00000000-0000-0000-0000-000000000000", complete(50))
		if !errors.Is(err, task.ErrNotFound) {
			t.Errorf("UpdateTaskCompletion() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateTaskCompletion mutation error leaves task untouched", func(t *testing.T) {
		s := newStore(t)
		mustEnsure(t, s, "learner-1")
		id, err := s.CreateTask(ctx, quizTask("learner-1", 1))
		if err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}

		boom := errors.New("boom")
		_, err = s.UpdateTaskCompletion(ctx, "learner-1", id, func(t *task.Task) (task.ProgressDelta, error) {
			t.Completed = true
			return task.ProgressDelta{}, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("UpdateTaskCompletion() error = %v, want boom", err)
		}
		got, _ := s.GetTask(ctx, "learner-1", id)
		if got.Completed {
			t.Error("failed mutation should not persist completion")
		}
	})

	t.Run("UpdateProgress compare and set", func(t *testing.T) {
		s := newStore(t)
		p := mustEnsure(t, s, "learner-1")

		updated, err := s.UpdateProgress(ctx, "learner-1", p.Version, func(p *task.Progress) error {
			p.AddCompletedUnit("chapter_1")
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateProgress() error = %v", err)
		}
		if updated.Version != p.Version+1 {
			t.Errorf("Version = %d, want %d", updated.Version, p.Version+1)
		}

		_, err = s.UpdateProgress(ctx, "learner-1", p.Version, func(p *task.Progress) error {
			p.AddCompletedUnit("chapter_2")
			return nil
		})
		if !errors.Is(err, task.ErrConflict) {
			t.Errorf("UpdateProgress(stale) error = %v, want ErrConflict", err)
		}

		same, err := s.UpdateProgress(ctx, "learner-1", updated.Version, func(*task.Progress) error {
			return task.ErrNoChange
		})
		if err != nil {
			t.Fatalf("UpdateProgress(no change) error = %v", err)
		}
		if same.Version != updated.Version {
			t.Errorf("no-change update bumped version to %d", same.Version)
		}
	})

	t.Run("CommitAssignment advances anchor with tasks", func(t *testing.T) {
		s := newStore(t)
		p := mustEnsure(t, s, "learner-1")

		batch := []task.Task{quizTask("learner-1", 1), tutorialTask("learner-1", 2, "chapter_1")}
		if err := s.CommitAssignment(ctx, "learner-1", p.Version, weekStart, batch); err != nil {
			t.Fatalf("CommitAssignment() error = %v", err)
		}

		got, _ := s.GetProgress(ctx, "learner-1")
		if got.CurrentWeekStart == nil || !got.CurrentWeekStart.Equal(weekStart) {
			t.Errorf("CurrentWeekStart = %v, want %v", got.CurrentWeekStart, weekStart)
		}
		if got.Version != p.Version+1 {
			t.Errorf("Version = %d, want %d", got.Version, p.Version+1)
		}
		tasks, _ := s.GetTasksForLearner(ctx, "learner-1", weekStart)
		if len(tasks) != 2 {
			t.Errorf("tasks = %d, want 2", len(tasks))
		}

		// Stale version loses.
		err := s.CommitAssignment(ctx, "learner-1", p.Version, weekStart, []task.Task{quizTask("learner-1", 3)})
		if !errors.Is(err, task.ErrConflict) {
			t.Errorf("CommitAssignment(stale) error = %v, want ErrConflict", err)
		}
		tasks, _ = s.GetTasksForLearner(ctx, "learner-1", weekStart)
		if len(tasks) != 2 {
			t.Errorf("tasks after lost race = %d, want 2", len(tasks))
		}
	})

	t.Run("CommitAssignment failed insert keeps anchor", func(t *testing.T) {
		s := newStore(t)
		p := mustEnsure(t, s, "learner-1")

		bad := quizTask("learner-1", 1)
		bad.Attributes = nil
		if err := s.CommitAssignment(ctx, "learner-1", p.Version, weekStart, []task.Task{bad}); err == nil {
			t.Fatal("CommitAssignment() should fail for invalid task")
		}
		got, _ := s.GetProgress(ctx, "learner-1")
		if got.CurrentWeekStart != nil {
			t.Errorf("CurrentWeekStart = %v, want unset", got.CurrentWeekStart)
		}
		if got.Version != p.Version {
			t.Errorf("Version = %d, want %d", got.Version, p.Version)
		}
	})

	t.Run("concurrent tutorial completions union units", func(t *testing.T) {
		s := newStore(t)
		mustEnsure(t, s, "learner-1")

		units := []string{"chapter_1", "chapter_2", "chapter_3", "chapter_4"}
		ids := make([]string, len(units))
		for i, u := range units {
			id, err := s.CreateTask(ctx, tutorialTask("learner-1", i+1, u))
			if err != nil {
				t.Fatalf("CreateTask() error = %v", err)
			}
			ids[i] = id
		}

		var wg sync.WaitGroup
		errs := make(chan error, len(ids))
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := s.UpdateTaskCompletion(ctx, "learner-1", id, complete(70)); err != nil {
					errs <- err
				}
			}(id)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("UpdateTaskCompletion() error = %v", err)
		}

		p, _ := s.GetProgress(ctx, "learner-1")
		if len(p.CompletedUnits) != len(units) {
			t.Errorf("CompletedUnits = %v, want %d entries", p.CompletedUnits, len(units))
		}
	})
}

func mustEnsure(t *testing.T, s task.Store, learnerID string) task.Progress {
	t.Helper()
	p, err := s.EnsureProgress(context.Background(), learnerID)
	if err != nil {
		t.Fatalf("EnsureProgress() error = %v", err)
	}
	return p
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(*testing.T) task.Store { return task.NewMemoryStore() })
}

func TestMemoryStore_CreateTask_UnknownLearner(t *testing.T) {
	s := task.NewMemoryStore()
	_, err := s.CreateTask(context.Background(), quizTask("ghost", 1))
	if !errors.Is(err, task.ErrNotFound) {
		t.Errorf("CreateTask() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_CommitAssignment_RejectsBackwardAnchor(t *testing.T) {
	ctx := context.Background()
	s := task.NewMemoryStore()
	p := mustEnsure(t, s, "learner-1")

	if err := s.CommitAssignment(ctx, "learner-1", p.Version, weekStart, nil); err != nil {
		t.Fatalf("CommitAssignment() error = %v", err)
	}
	err := s.CommitAssignment(ctx, "learner-1", p.Version+1, weekStart.AddDate(0, 0, -7), nil)
	if !errors.Is(err, task.ErrValidation) {
		t.Errorf("CommitAssignment(backward) error = %v, want ErrValidation", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := task.NewMemoryStore()
	mustEnsure(t, s, "learner-1")
	id, err := s.CreateTask(ctx, quizTask("learner-1", 1))
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	got, _ := s.GetTask(ctx, "learner-1", id)
	q, _ := got.Quiz()
	q.Tags[0] = "mutated"

	again, _ := s.GetTask(ctx, "learner-1", id)
	q2, _ := again.Quiz()
	if q2.Tags[0] != "linear-equations" {
		t.Error("GetTask() returned shared tag slice")
	}
}

func TestSortByWeekAndNumber(t *testing.T) {
	a := quizTask("l", 2)
	b := quizTask("l", 1)
	c := quizTask("l", 1)
	c.StartDateOfWeek = weekStart.AddDate(0, 0, -7)

	tasks := []task.Task{a, b, c}
	task.SortByWeekAndNumber(tasks)

	if !tasks[0].StartDateOfWeek.Equal(c.StartDateOfWeek) || tasks[1].TaskNumber != 1 || tasks[2].TaskNumber != 2 {
		t.Errorf("SortByWeekAndNumber() order = %d,%d,%d", tasks[0].TaskNumber, tasks[1].TaskNumber, tasks[2].TaskNumber)
	}
}
