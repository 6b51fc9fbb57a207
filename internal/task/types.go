// Package task defines weekly learning tasks, learner progress records and
// the storage boundary both are persisted through.
package task

import (
	"fmt"
	"slices"
	"time"
)

// Type identifies the kind of work a task represents.
type Type string

const (
	TypeQuiz     Type = "quiz"
	TypeTutorial Type = "tutorial"
)

// Subject is the display subject of a task.
type Subject string

const (
	SubjectMath           Subject = "Math"
	SubjectReading        Subject = "Reading"
	SubjectWriting        Subject = "Writing"
	SubjectReadingWriting Subject = "Reading & Writing"
)

// FrequencyWeekly is the only batch frequency the scheduler produces.
const FrequencyWeekly = "weekly"

// Status is the derived lifecycle state of a task. Only completion is stored;
// overdue is computed from the due date.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusOverdue   Status = "overdue"
)

// Attributes is the type-specific payload of a task. It is implemented only
// by QuizAttributes and TutorialAttributes, so a task always carries exactly
// one payload and its Type cannot disagree with it.
type Attributes interface {
	Type() Type
	validate() error
}

// QuizAttributes parametrize a knowledge-check quiz.
type QuizAttributes struct {
	FacetID         string   `json:"facet"`
	Tags            []string `json:"tags"`
	NumQuestions    int      `json:"num_questions"`
	DifficultyLevel int      `json:"difficulty_level"`
	DurationMinutes int      `json:"duration_minutes"`
	PassingScore    float64  `json:"passing_score"`
}

func (QuizAttributes) Type() Type { return TypeQuiz }

func (a QuizAttributes) validate() error {
	if a.FacetID == "" {
		return fmt.Errorf("%w: quiz facet is required", ErrValidation)
	}
	if a.NumQuestions <= 0 {
		return fmt.Errorf("%w: quiz question count must be positive", ErrValidation)
	}
	return nil
}

// TutorialAttributes describe a guided tutorial session for one curriculum unit.
type TutorialAttributes struct {
	UnitID                   string `json:"chapter_id"`
	UnitTitle                string `json:"chapter_title"`
	EstimatedDurationMinutes int    `json:"estimated_duration_minutes"`
}

func (TutorialAttributes) Type() Type { return TypeTutorial }

func (a TutorialAttributes) validate() error {
	if a.UnitID == "" {
		return fmt.Errorf("%w: tutorial unit is required", ErrValidation)
	}
	return nil
}

// AttemptInfo records attempts against a task. It only changes on completion.
type AttemptInfo struct {
	Attempts    int            `json:"attempts"`
	BestScore   *float64       `json:"best_score"`
	LastAttempt *time.Time     `json:"last_attempt,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Task is one unit of work assigned to a learner for a week.
type Task struct {
	ID              string
	LearnerID       string
	Subject         Subject
	Title           string
	Description     string
	DueDate         time.Time
	TaskNumber      int
	Completed       bool
	CompletedAt     *time.Time
	StartDateOfWeek time.Time
	Frequency       string
	CreatedAt       time.Time
	Attributes      Attributes
	Attempts        AttemptInfo
}

// Type returns the task type implied by its payload.
func (t Task) Type() Type {
	if t.Attributes == nil {
		return ""
	}
	return t.Attributes.Type()
}

// Quiz returns the quiz payload if t is a quiz.
func (t Task) Quiz() (QuizAttributes, bool) {
	a, ok := t.Attributes.(QuizAttributes)
	return a, ok
}

// Tutorial returns the tutorial payload if t is a tutorial.
func (t Task) Tutorial() (TutorialAttributes, bool) {
	a, ok := t.Attributes.(TutorialAttributes)
	return a, ok
}

// IsOverdue reports whether t is still pending past its due date.
func (t Task) IsOverdue(now time.Time) bool {
	return !t.Completed && t.DueDate.Before(now)
}

// Status derives the lifecycle state of t at now.
func (t Task) Status(now time.Time) Status {
	switch {
	case t.Completed:
		return StatusCompleted
	case t.IsOverdue(now):
		return StatusOverdue
	default:
		return StatusPending
	}
}

// Validate checks the structural invariants of a task before it is written.
func (t Task) Validate() error {
	if t.LearnerID == "" {
		return fmt.Errorf("%w: learner_id is required", ErrValidation)
	}
	if t.Attributes == nil {
		return fmt.Errorf("%w: task attributes are required", ErrValidation)
	}
	if err := t.Attributes.validate(); err != nil {
		return err
	}
	if t.TaskNumber < 1 {
		return fmt.Errorf("%w: task_number must be >= 1, got %d", ErrValidation, t.TaskNumber)
	}
	if !InWeek(t.StartDateOfWeek, t.DueDate) {
		return fmt.Errorf("%w: due date %s outside week starting %s",
			ErrValidation, t.DueDate.Format(time.RFC3339), t.StartDateOfWeek.Format(time.DateOnly))
	}
	return nil
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	c := t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	if q, ok := t.Attributes.(QuizAttributes); ok {
		q.Tags = slices.Clone(q.Tags)
		c.Attributes = q
	}
	c.Attempts = t.Attempts.clone()
	return c
}

func (a AttemptInfo) clone() AttemptInfo {
	c := a
	if a.BestScore != nil {
		s := *a.BestScore
		c.BestScore = &s
	}
	if a.LastAttempt != nil {
		at := *a.LastAttempt
		c.LastAttempt = &at
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// Progress is the durable per-learner record the scheduler and lifecycle
// manager write. Version increments on every write and is the
// compare-and-set token for concurrent updates.
type Progress struct {
	LearnerID        string     `json:"learner_id"`
	CompletedUnits   []string   `json:"completed_units"`
	CurrentWeekStart *time.Time `json:"current_week_start"`
	Version          int64      `json:"version"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// HasCompleted reports whether unitID is in the completed set.
func (p Progress) HasCompleted(unitID string) bool {
	return slices.Contains(p.CompletedUnits, unitID)
}

// AddCompletedUnit appends unitID with set semantics. It reports whether the
// set changed.
func (p *Progress) AddCompletedUnit(unitID string) bool {
	if p.HasCompleted(unitID) {
		return false
	}
	p.CompletedUnits = append(p.CompletedUnits, unitID)
	return true
}

// Clone returns a deep copy of p.
func (p Progress) Clone() Progress {
	c := p
	c.CompletedUnits = slices.Clone(p.CompletedUnits)
	if p.CurrentWeekStart != nil {
		ws := *p.CurrentWeekStart
		c.CurrentWeekStart = &ws
	}
	return c
}
