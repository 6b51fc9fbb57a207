package task

import (
	"encoding/json"
	"fmt"
	"time"
)

type taskJSON struct {
	ID                 string              `json:"id"`
	LearnerID          string              `json:"learner_id"`
	Type               Type                `json:"type"`
	Subject            Subject             `json:"subject"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	DueDate            time.Time           `json:"due_date"`
	TaskNumber         int                 `json:"task_number"`
	Completed          bool                `json:"completed"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	StartDateOfWeek    time.Time           `json:"start_date_of_week"`
	Frequency          string              `json:"frequency"`
	CreatedAt          time.Time           `json:"created_at"`
	QuizAttributes     *QuizAttributes     `json:"quiz_attributes,omitempty"`
	TutorialAttributes *TutorialAttributes `json:"tutorial_attributes,omitempty"`
	Attempts           AttemptInfo         `json:"attempt_info"`
}

// MarshalJSON encodes the payload under quiz_attributes or
// tutorial_attributes according to the task type.
func (t Task) MarshalJSON() ([]byte, error) {
	out := taskJSON{
		ID:              t.ID,
		LearnerID:       t.LearnerID,
		Type:            t.Type(),
		Subject:         t.Subject,
		Title:           t.Title,
		Description:     t.Description,
		DueDate:         t.DueDate,
		TaskNumber:      t.TaskNumber,
		Completed:       t.Completed,
		CompletedAt:     t.CompletedAt,
		StartDateOfWeek: t.StartDateOfWeek,
		Frequency:       t.Frequency,
		CreatedAt:       t.CreatedAt,
		Attempts:        t.Attempts,
	}
	switch a := t.Attributes.(type) {
	case QuizAttributes:
		out.QuizAttributes = &a
	case TutorialAttributes:
		out.TutorialAttributes = &a
	}
	return json.Marshal(out)
}

// UnmarshalJSON rejects records whose payload does not match their type.
func (t *Task) UnmarshalJSON(data []byte) error {
	var in taskJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	attrs, err := decodeAttributes(in.Type, in.QuizAttributes, in.TutorialAttributes)
	if err != nil {
		return err
	}
	*t = Task{
		ID:              in.ID,
		LearnerID:       in.LearnerID,
		Subject:         in.Subject,
		Title:           in.Title,
		Description:     in.Description,
		DueDate:         in.DueDate,
		TaskNumber:      in.TaskNumber,
		Completed:       in.Completed,
		CompletedAt:     in.CompletedAt,
		StartDateOfWeek: in.StartDateOfWeek,
		Frequency:       in.Frequency,
		CreatedAt:       in.CreatedAt,
		Attributes:      attrs,
		Attempts:        in.Attempts,
	}
	return nil
}

func decodeAttributes(typ Type, quiz *QuizAttributes, tutorial *TutorialAttributes) (Attributes, error) {
	switch {
	case typ == TypeQuiz && quiz != nil && tutorial == nil:
		return *quiz, nil
	case typ == TypeTutorial && tutorial != nil && quiz == nil:
		return *tutorial, nil
	default:
		return nil, fmt.Errorf("%w: task of type %q has mismatched attributes", ErrValidation, typ)
	}
}

// MarshalAttributes encodes the payload alone, for storage columns.
func MarshalAttributes(a Attributes) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: task attributes are required", ErrValidation)
	}
	return json.Marshal(a)
}

// UnmarshalAttributes decodes a stored payload for the given type.
func UnmarshalAttributes(typ Type, data []byte) (Attributes, error) {
	switch typ {
	case TypeQuiz:
		var q QuizAttributes
		if err := json.Unmarshal(data, &q); err != nil {
			return nil, fmt.Errorf("decode quiz attributes: %w", err)
		}
		return q, nil
	case TypeTutorial:
		var a TutorialAttributes
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode tutorial attributes: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: unknown task type %q", ErrValidation, typ)
	}
}
