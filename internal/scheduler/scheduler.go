// Package scheduler decides when a learner needs a new weekly batch and
// builds it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/events"
	"github.com/p-n-ai/pai-planner/internal/platform/cache"
	"github.com/p-n-ai/pai-planner/internal/platform/metrics"
	"github.com/p-n-ai/pai-planner/internal/tags"
	"github.com/p-n-ai/pai-planner/internal/task"
)

const defaultLockTTL = 30 * time.Second

// Locker is an optional cross-process lock taken around planning.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Config holds dependencies for the scheduler.
type Config struct {
	Catalog  *curriculum.Catalog
	Store    task.Store
	Tags     tags.Source      // nil uses placeholder tags
	Events   events.Logger    // default events.Nop
	Metrics  *metrics.Metrics // nil records nothing
	Locker   Locker           // nil disables locking
	LockTTL  time.Duration    // default 30s
	Location *time.Location   // week boundaries; default UTC
	MaxTags  int              // default tags.MaxTags
}

// Scheduler assigns weekly task batches.
type Scheduler struct {
	catalog  *curriculum.Catalog
	store    task.Store
	tags     tags.Source
	events   events.Logger
	metrics  *metrics.Metrics
	locker   Locker
	lockTTL  time.Duration
	location *time.Location
	maxTags  int
	now      func() time.Time
}

// Assignment is the outcome of AssignWeeklyTasks.
type Assignment struct {
	WeekStart time.Time
	Tasks     []task.Task
	// Created is false when the week was already assigned and Tasks are the
	// existing ones.
	Created bool
}

// New creates a scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("scheduler: catalog is required")
	}
	store := cfg.Store
	if store == nil {
		store = task.NewMemoryStore()
	}
	logger := cfg.Events
	if logger == nil {
		logger = events.Nop{}
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	maxTags := cfg.MaxTags
	if maxTags <= 0 || maxTags > tags.MaxTags {
		maxTags = tags.MaxTags
	}
	return &Scheduler{
		catalog:  cfg.Catalog,
		store:    store,
		tags:     cfg.Tags,
		events:   logger,
		metrics:  cfg.Metrics,
		locker:   cfg.Locker,
		lockTTL:  lockTTL,
		location: loc,
		maxTags:  maxTags,
		now:      time.Now,
	}, nil
}

// WeekStart returns the Monday anchor of today's week in the scheduler's
// time zone.
func (s *Scheduler) WeekStart(today time.Time) time.Time {
	return task.WeekStart(today.In(s.location))
}

// NeedsAssignment reports whether the learner lacks a batch for today's
// week. Unknown learners need one.
func (s *Scheduler) NeedsAssignment(ctx context.Context, learnerID string, today time.Time) (bool, error) {
	p, err := s.store.GetProgress(ctx, learnerID)
	if errors.Is(err, task.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	ws := s.WeekStart(today)
	if !task.SameWeek(p.CurrentWeekStart, ws) {
		return true, nil
	}
	existing, err := s.store.GetTasksForLearner(ctx, learnerID, ws)
	if err != nil {
		return false, err
	}
	return len(existing) == 0, nil
}

// AssignWeeklyTasks creates today's week batch for the learner unless one
// already exists, in which case the existing batch is returned unchanged.
// A concurrent assignment that commits first makes this call fail with
// task.ErrConflict and persist nothing.
func (s *Scheduler) AssignWeeklyTasks(ctx context.Context, learnerID string, today time.Time) (Assignment, error) {
	ws := s.WeekStart(today)
	result := Assignment{WeekStart: ws}

	p, err := s.store.GetProgress(ctx, learnerID)
	if err != nil {
		return result, err
	}
	if p.CurrentWeekStart != nil && p.CurrentWeekStart.After(ws) {
		return result, fmt.Errorf("%w: week anchor %s is ahead of %s",
			task.ErrValidation, p.CurrentWeekStart.Format(time.DateOnly), ws.Format(time.DateOnly))
	}

	existing, err := s.store.GetTasksForLearner(ctx, learnerID, ws)
	if err != nil {
		return result, err
	}
	if task.SameWeek(p.CurrentWeekStart, ws) && len(existing) > 0 {
		s.metrics.Assignment(metrics.OutcomeSkipped)
		result.Tasks = existing
		return result, nil
	}
	if len(existing) > 0 {
		// Tasks exist for a week the anchor never reached.
		return result, fmt.Errorf("%w: learner %s has tasks for unanchored week %s",
			task.ErrConflict, learnerID, ws.Format(time.DateOnly))
	}

	if s.locker != nil {
		key := cache.Key("assign", learnerID, ws.Format(time.DateOnly))
		release, ok, err := s.locker.Acquire(ctx, key, s.lockTTL)
		switch {
		case err != nil:
			slog.Warn("assignment lock unavailable, continuing without it",
				"learner_id", learnerID,
				"error", err,
			)
		case !ok:
			s.metrics.Assignment(metrics.OutcomeConflict)
			return result, fmt.Errorf("%w: assignment for learner %s already in progress", task.ErrConflict, learnerID)
		default:
			defer release()
		}
	}

	batch, err := s.Plan(ctx, p, today)
	if err != nil {
		s.metrics.Assignment(metrics.OutcomeFailed)
		return result, err
	}

	if err := s.store.CommitAssignment(ctx, learnerID, p.Version, ws, batch); err != nil {
		if errors.Is(err, task.ErrConflict) {
			s.metrics.Assignment(metrics.OutcomeConflict)
		} else {
			s.metrics.Assignment(metrics.OutcomeFailed)
		}
		slog.Warn("weekly assignment not committed",
			"learner_id", learnerID,
			"week_start", ws.Format(time.DateOnly),
			"error", err,
		)
		return result, err
	}

	s.metrics.Assignment(metrics.OutcomeAssigned)
	quizzes, tutorials := 0, 0
	for _, t := range batch {
		s.metrics.TaskCreated(string(t.Type()))
		if t.Type() == task.TypeQuiz {
			quizzes++
		} else {
			tutorials++
		}
	}

	slog.Info("weekly tasks assigned",
		"learner_id", learnerID,
		"week_start", ws.Format(time.DateOnly),
		"quizzes", quizzes,
		"tutorials", tutorials,
	)
	if err := s.events.LogEvent(ctx, events.Event{
		LearnerID: learnerID,
		EventType: events.TypeTasksAssigned,
		Data: map[string]any{
			"week_start": ws.Format(time.DateOnly),
			"quizzes":    quizzes,
			"tutorials":  tutorials,
		},
	}); err != nil {
		slog.Warn("failed to log assignment event", "learner_id", learnerID, "error", err)
	}

	result.Tasks = batch
	result.Created = true
	return result, nil
}

// Plan builds the batch for today's week from the learner's progress
// without persisting it.
func (s *Scheduler) Plan(ctx context.Context, p task.Progress, today time.Time) ([]task.Task, error) {
	if p.LearnerID == "" {
		return nil, fmt.Errorf("%w: learner_id is required", task.ErrValidation)
	}
	day := today.In(s.location)
	ws := task.WeekStart(day)
	daysLeft := task.DaysLeftInWeek(day)
	policy := PolicyFor(daysLeft)

	facets := s.catalog.Facets()
	if len(facets) > policy.Quizzes {
		facets = facets[:policy.Quizzes]
	}
	units := s.catalog.UpcomingUnits(p.CompletedUnits, policy.Tutorials)

	now := s.now()
	batch := make([]task.Task, 0, len(facets)+len(units))
	for _, f := range facets {
		batch = append(batch, s.quizTask(ctx, p.LearnerID, f))
	}
	for _, u := range units {
		batch = append(batch, tutorialTask(p.LearnerID, u))
	}

	n := len(batch)
	lastDay := task.WeekLastDay(ws)
	start := task.StartOfDay(day)
	for i := range batch {
		dueDay := start.AddDate(0, 0, i*daysLeft/n)
		if dueDay.After(lastDay) {
			dueDay = lastDay
		}
		batch[i].ID = uuid.NewString()
		batch[i].DueDate = task.EndOfDay(dueDay)
		batch[i].TaskNumber = i + 1
		batch[i].StartDateOfWeek = ws
		batch[i].Frequency = task.FrequencyWeekly
		batch[i].CreatedAt = now
	}
	return batch, nil
}

func (s *Scheduler) quizTask(ctx context.Context, learnerID string, f curriculum.Facet) task.Task {
	picked := s.pickTags(ctx, learnerID, f.ID)
	return task.Task{
		LearnerID: learnerID,
		Subject:   task.Subject(f.Subject),
		Title:     f.Title,
		Description: fmt.Sprintf("Complete a %s with %d questions covering %s and more topics.",
			f.Title, QuizQuestions, strings.Join(picked[:min(3, len(picked))], ", ")),
		Attributes: task.QuizAttributes{
			FacetID:         f.ID,
			Tags:            picked,
			NumQuestions:    QuizQuestions,
			DifficultyLevel: QuizDifficulty,
			DurationMinutes: QuizDurationMinutes,
			PassingScore:    QuizPassingScore,
		},
	}
}

func (s *Scheduler) pickTags(ctx context.Context, learnerID, facetID string) []string {
	if s.tags != nil {
		picked, err := s.tags.Tags(ctx, facetID, s.maxTags)
		if err == nil && len(picked) > 0 {
			return picked
		}
		slog.Warn("tag source failed, using placeholder tags",
			"learner_id", learnerID,
			"facet", facetID,
			"error", err,
		)
	}
	s.metrics.TagFallback(facetID)
	return tags.Fallback(facetID, s.maxTags)
}

func tutorialTask(learnerID string, u curriculum.Unit) task.Task {
	subject := task.Subject(u.Subject)
	if subject == "" {
		subject = task.SubjectReading
	}
	summary := u.Summary
	if r := []rune(summary); len(r) > 100 {
		summary = string(r[:100])
	}
	return task.Task{
		LearnerID:   learnerID,
		Subject:     subject,
		Title:       "AI Tutorial: " + u.Title,
		Description: fmt.Sprintf("Complete the AI tutorial for %s. %s...", u.Title, summary),
		Attributes: task.TutorialAttributes{
			UnitID:                   u.ID,
			UnitTitle:                u.Title,
			EstimatedDurationMinutes: TutorialDurationMinutes,
		},
	}
}
