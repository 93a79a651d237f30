package model

import (
	"github.com/google/uuid"
)

// QuestionType is a closed tag. Only MCQ questions are auto-graded; other
// types are stored and returned but never scored.
type QuestionType string

const (
	QuestionTypeMCQ      QuestionType = "mcq"
	QuestionTypeFreeText QuestionType = "free_text"
)

// Question represents a single exam question.
type Question struct {
	ID       uuid.UUID    `json:"id"`
	ExamID   uuid.UUID    `json:"exam_id"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Position int          `json:"position"`
}

// Choice represents one option of an MCQ question.
type Choice struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Text       string    `json:"text"`
	IsCorrect  bool      `json:"is_correct"`
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Type    string             `json:"type" binding:"required,oneof=mcq free_text"`
	Text    string             `json:"text" binding:"required,min=1,max=2000"`
	Choices []AddChoiceRequest `json:"choices" binding:"omitempty,dive"`
}

// AddChoiceRequest is one choice within an AddQuestionRequest.
type AddChoiceRequest struct {
	Text      string `json:"text" binding:"required,min=1,max=500"`
	IsCorrect bool   `json:"is_correct"`
}

// ChoiceForStudent is a choice without the correct flag, sent to students.
type ChoiceForStudent struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

// QuestionForStudent is a question as delivered at attempt start. It never
// carries correct flags, so the answer key cannot leak to the client.
type QuestionForStudent struct {
	ID      uuid.UUID          `json:"id"`
	Type    QuestionType       `json:"type"`
	Text    string             `json:"text"`
	Choices []ChoiceForStudent `json:"choices"`
}
