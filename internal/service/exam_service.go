package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/olababsmichael/cbt-exam-system/internal/model"
)

// Authoring errors.
var (
	ErrMultipleCorrectChoices = errors.New("mcq question must have exactly one correct choice")
	ErrChoicesRequired        = errors.New("mcq question requires at least one choice")
)

// ExamStore persists authored exams.
type ExamStore interface {
	CreateExam(ctx context.Context, e *model.Exam) error
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListExams(ctx context.Context) ([]model.Exam, error)
}

// QuestionStore persists authored questions and their choices.
type QuestionStore interface {
	AddQuestion(ctx context.Context, q *model.Question, choices []model.Choice) error
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	ListChoices(ctx context.Context, questionID uuid.UUID) ([]model.Choice, error)
}

// ExamService handles exam authoring. Exams are immutable after creation;
// the only write operations are creating an exam and appending questions.
type ExamService struct {
	exams     ExamStore
	questions QuestionStore
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamStore, questions QuestionStore, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:     exams,
		questions: questions,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// Create inserts a new exam owned by the authoring admin.
func (s *ExamService) Create(ctx context.Context, exam *model.Exam) error {
	if err := s.exams.CreateExam(ctx, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	s.log.Info().Str("exam_id", exam.ID.String()).Str("title", exam.Title).Msg("Exam created")
	return nil
}

// List returns all exams, newest first.
func (s *ExamService) List(ctx context.Context) ([]model.Exam, error) {
	exams, err := s.exams.ListExams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// AddQuestion appends a question (with choices) to an exam. MCQ questions
// must carry exactly one correct choice; a second correct choice is rejected
// at write time rather than left to grading order.
func (s *ExamService) AddQuestion(ctx context.Context, examID uuid.UUID, req model.AddQuestionRequest) (*model.Question, error) {
	if _, err := s.exams.GetExam(ctx, examID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	question := &model.Question{
		ExamID: examID,
		Type:   model.QuestionType(req.Type),
		Text:   req.Text,
	}

	choices := make([]model.Choice, 0, len(req.Choices))
	correctCount := 0
	for _, c := range req.Choices {
		if c.IsCorrect {
			correctCount++
		}
		choices = append(choices, model.Choice{Text: c.Text, IsCorrect: c.IsCorrect})
	}

	if question.Type == model.QuestionTypeMCQ {
		if len(choices) == 0 {
			return nil, ErrChoicesRequired
		}
		if correctCount > 1 {
			return nil, ErrMultipleCorrectChoices
		}
	}

	if err := s.questions.AddQuestion(ctx, question, choices); err != nil {
		return nil, fmt.Errorf("add question: %w", err)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Str("question_id", question.ID.String()).
		Str("type", string(question.Type)).
		Msg("Question added")

	return question, nil
}

// QuestionDetail is the admin view of a question including the answer key.
type QuestionDetail struct {
	model.Question
	Choices []model.Choice `json:"choices"`
}

// ExamDetail is the admin view of an exam with its full question set.
type ExamDetail struct {
	model.Exam
	Questions []QuestionDetail `json:"questions"`
}

// GetWithQuestions returns an exam with all questions and choices, correct
// flags included. Admin-only — never exposed to students.
func (s *ExamService) GetWithQuestions(ctx context.Context, id uuid.UUID) (*ExamDetail, error) {
	exam, err := s.exams.GetExam(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	questions, err := s.questions.ListQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	detail := &ExamDetail{Exam: *exam, Questions: make([]QuestionDetail, 0, len(questions))}
	for _, q := range questions {
		choices, err := s.questions.ListChoices(ctx, q.ID)
		if err != nil {
			return nil, fmt.Errorf("list choices: %w", err)
		}
		detail.Questions = append(detail.Questions, QuestionDetail{Question: q, Choices: choices})
	}
	return detail, nil
}
