package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/olababsmichael/cbt-exam-system/internal/grading"
	"github.com/olababsmichael/cbt-exam-system/internal/model"
)

// Domain errors surfaced by the attempt engine.
var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptNotActive = errors.New("exam not active")
	ErrAlreadySubmitted = errors.New("already submitted")
	ErrAttemptExpired   = errors.New("attempt deadline has passed")
)

// QuestionBank is the read-only view of authored exam content consumed by
// the attempt engine.
type QuestionBank interface {
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	ListChoices(ctx context.Context, questionID uuid.UUID) ([]model.Choice, error)
}

// GradeFunc computes a score from the answers captured inside the submit
// transaction.
type GradeFunc func(ctx context.Context, examID uuid.UUID, answers map[uuid.UUID]json.RawMessage) (model.Score, error)

// AttemptStore persists attempts and their answers.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	UpsertAnswer(ctx context.Context, attemptID, questionID uuid.UUID, answer json.RawMessage) error
	GetAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]json.RawMessage, error)

	// Submit flips the attempt to submitted, invokes grade over the answers
	// read under the same lock, and persists the resulting score — all inside
	// one transaction. Concurrent submits for the same attempt serialize; the
	// loser observes the flipped status and fails with ErrAlreadySubmitted.
	Submit(ctx context.Context, attemptID uuid.UUID, endedAt time.Time, grade GradeFunc) (*model.Attempt, error)

	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.Attempt, error)
}

// AttemptService orchestrates the attempt lifecycle: start, answer, submit.
// It receives an already-authenticated student id and never inspects tokens.
type AttemptService struct {
	bank     QuestionBank
	attempts AttemptStore
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(bank QuestionBank, attempts AttemptStore, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		bank:     bank,
		attempts: attempts,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// AttemptPaper is returned to the student at attempt start.
type AttemptPaper struct {
	AttemptID uuid.UUID                  `json:"attempt_id"`
	ExamID    uuid.UUID                  `json:"exam_id"`
	Title     string                     `json:"title"`
	StartedAt time.Time                  `json:"started_at"`
	EndsAt    time.Time                  `json:"ends_at"`
	Questions []model.QuestionForStudent `json:"questions"`
}

// Start creates a new in-progress attempt and returns the exam's questions.
// The deadline is fixed once here: started_at + duration. Questions are
// shuffled per call and the order is never persisted, so re-fetching the
// attempt does not reproduce it.
func (s *AttemptService) Start(ctx context.Context, examID, studentID uuid.UUID) (*AttemptPaper, error) {
	exam, err := s.bank.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	now := time.Now()
	attempt := &model.Attempt{
		StudentID: studentID,
		ExamID:    examID,
		StartedAt: now,
		EndsAt:    now.Add(time.Duration(exam.DurationMinutes) * time.Minute),
		Status:    model.AttemptStatusInProgress,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	questions, err := s.bank.ListQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	paper := make([]model.QuestionForStudent, 0, len(questions))
	for _, q := range questions {
		choices, err := s.bank.ListChoices(ctx, q.ID)
		if err != nil {
			return nil, fmt.Errorf("list choices: %w", err)
		}
		cs := make([]model.ChoiceForStudent, 0, len(choices))
		for _, c := range choices {
			cs = append(cs, model.ChoiceForStudent{ID: c.ID, Text: c.Text})
		}
		paper = append(paper, model.QuestionForStudent{
			ID:      q.ID,
			Type:    q.Type,
			Text:    q.Text,
			Choices: cs,
		})
	}

	rand.Shuffle(len(paper), func(i, j int) {
		paper[i], paper[j] = paper[j], paper[i]
	})

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", examID.String()).
		Str("student_id", studentID.String()).
		Time("ends_at", attempt.EndsAt).
		Msg("Attempt started")

	return &AttemptPaper{
		AttemptID: attempt.ID,
		ExamID:    examID,
		Title:     exam.Title,
		StartedAt: attempt.StartedAt,
		EndsAt:    attempt.EndsAt,
		Questions: paper,
	}, nil
}

// RecordAnswer upserts an answer for (attempt, question). The value is
// stored as-is; grading treats unparseable or stray answers as incorrect.
// Answers are rejected once the attempt is submitted or past its deadline.
func (s *AttemptService) RecordAnswer(ctx context.Context, attemptID, studentID, questionID uuid.UUID, answer json.RawMessage) error {
	attempt, err := s.getOwnAttempt(ctx, attemptID, studentID)
	if err != nil {
		return err
	}

	if attempt.Status != model.AttemptStatusInProgress {
		return ErrAttemptNotActive
	}
	if time.Now().After(attempt.EndsAt) {
		return ErrAttemptExpired
	}

	if err := s.attempts.UpsertAnswer(ctx, attemptID, questionID, answer); err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

// Submit finalizes the attempt and returns its score. The status guard makes
// grading exactly-once: a second submit fails with ErrAlreadySubmitted and
// never touches score or ended_at. A late submit (past the deadline) is
// accepted — it is the only way an expired attempt gets finalized.
func (s *AttemptService) Submit(ctx context.Context, attemptID, studentID uuid.UUID) (*model.Score, error) {
	if _, err := s.getOwnAttempt(ctx, attemptID, studentID); err != nil {
		return nil, err
	}

	attempt, err := s.attempts.Submit(ctx, attemptID, time.Now(), s.gradeAttempt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrAttemptNotFound
		case errors.Is(err, ErrAlreadySubmitted):
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("submit attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("correct", attempt.Score.Correct).
		Int("total", attempt.Score.Total).
		Int("percent", attempt.Score.Percent).
		Msg("Attempt submitted")

	return attempt.Score, nil
}

// ListByStudent returns a student's attempt history, newest first.
func (s *AttemptService) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.Attempt, error) {
	return s.attempts.ListByStudent(ctx, studentID)
}

// gradeAttempt builds the answer key for the attempt's exam and scores the
// recorded answers. Invoked by the store inside the submit transaction.
func (s *AttemptService) gradeAttempt(ctx context.Context, examID uuid.UUID, answers map[uuid.UUID]json.RawMessage) (model.Score, error) {
	questions, err := s.bank.ListQuestions(ctx, examID)
	if err != nil {
		return model.Score{}, fmt.Errorf("list questions: %w", err)
	}

	choices := make(map[uuid.UUID][]model.Choice, len(questions))
	for _, q := range questions {
		if q.Type != model.QuestionTypeMCQ {
			continue
		}
		cs, err := s.bank.ListChoices(ctx, q.ID)
		if err != nil {
			return model.Score{}, fmt.Errorf("list choices: %w", err)
		}
		choices[q.ID] = cs
	}

	return grading.Grade(questions, grading.BuildAnswerKey(choices), answers), nil
}

// getOwnAttempt loads an attempt and verifies ownership. Foreign attempts
// are reported as not found so their existence does not leak.
func (s *AttemptService) getOwnAttempt(ctx context.Context, attemptID, studentID uuid.UUID) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}
