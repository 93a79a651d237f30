package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents an authored exam. Exams are immutable after creation:
// there are no update or delete operations.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedBy       uuid.UUID `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string `json:"title" binding:"required,min=3,max=255"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1,max=480"`
}
