package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/olababsmichael/cbt-exam-system/internal/model"
)

// QuestionRepository handles question and choice data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// AddQuestion inserts a question and its choices in one transaction. The
// position is assigned from the current max within the exam, so questions
// keep their authoring order.
func (r *QuestionRepository) AddQuestion(ctx context.Context, q *model.Question, choices []model.Choice) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO questions (exam_id, type, text, position)
		 SELECT $1, $2, $3, COALESCE(MAX(position) + 1, 0)
		 FROM questions WHERE exam_id = $1
		 RETURNING id, position`,
		q.ExamID, q.Type, q.Text,
	).Scan(&q.ID, &q.Position)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}

	for i := range choices {
		choices[i].QuestionID = q.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO choices (question_id, text, is_correct, position)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			q.ID, choices[i].Text, choices[i].IsCorrect, i,
		).Scan(&choices[i].ID)
		if err != nil {
			return fmt.Errorf("insert choice: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListQuestions retrieves an exam's questions in authoring order.
func (r *QuestionRepository) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, type, text, position
		 FROM questions WHERE exam_id = $1 ORDER BY position`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Type, &q.Text, &q.Position); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListChoices retrieves a question's choices in insertion order.
func (r *QuestionRepository) ListChoices(ctx context.Context, questionID uuid.UUID) ([]model.Choice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_id, text, is_correct
		 FROM choices WHERE question_id = $1 ORDER BY position`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var choices []model.Choice
	for rows.Next() {
		var c model.Choice
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.Text, &c.IsCorrect); err != nil {
			return nil, err
		}
		choices = append(choices, c)
	}
	return choices, rows.Err()
}
