package repository

import "github.com/jackc/pgx/v5/pgxpool"

// QuestionBank combines the exam and question repositories into the
// read-only view the attempt engine consumes.
type QuestionBank struct {
	*ExamRepository
	*QuestionRepository
}

// NewQuestionBank creates a QuestionBank backed by the shared pool.
func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{
		ExamRepository:     NewExamRepository(pool),
		QuestionRepository: NewQuestionRepository(pool),
	}
}
