package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states. The machine is monotonic:
// in_progress transitions to submitted exactly once, never back.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
)

// Attempt represents one student's timed instance of taking an exam.
type Attempt struct {
	ID        uuid.UUID     `json:"id"`
	StudentID uuid.UUID     `json:"student_id"`
	ExamID    uuid.UUID     `json:"exam_id"`
	StartedAt time.Time     `json:"started_at"`
	EndsAt    time.Time     `json:"ends_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Status    AttemptStatus `json:"status"`
	Score     *Score        `json:"score,omitempty"`
}

// Score is the grading result persisted onto a submitted attempt. It is
// computed once at submission time and never recomputed.
type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// RecordAnswerRequest is the payload for autosaving an answer. The answer
// value is opaque to the engine; for MCQ it is a JSON-encoded choice id.
type RecordAnswerRequest struct {
	QuestionID uuid.UUID       `json:"question_id" binding:"required"`
	Answer     json.RawMessage `json:"answer" binding:"required"`
}
