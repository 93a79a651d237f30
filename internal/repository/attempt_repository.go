package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/olababsmichael/cbt-exam-system/internal/model"
	"github.com/olababsmichael/cbt-exam-system/internal/service"
)

// AttemptRepository handles attempt and answer data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new in-progress attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO student_exams (student_id, exam_id, started_at, ends_at, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		a.StudentID, a.ExamID, a.StartedAt, a.EndsAt, a.Status,
	).Scan(&a.ID)
}

// GetByID retrieves an attempt by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, student_id, exam_id, started_at, ends_at, ended_at, status, score
		 FROM student_exams WHERE id = $1`, id,
	).Scan(&a.ID, &a.StudentID, &a.ExamID, &a.StartedAt, &a.EndsAt, &a.EndedAt, &a.Status, &a.Score)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpsertAnswer writes the latest answer for (attempt, question). The insert
// is guarded on attempt status so a write racing with submit cannot land
// after the attempt was graded.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, attemptID, questionID uuid.UUID, answer json.RawMessage) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO student_answers (attempt_id, question_id, answer)
		 SELECT $1, $2, $3
		 WHERE EXISTS (
		     SELECT 1 FROM student_exams WHERE id = $1 AND status = 'in_progress'
		 )
		 ON CONFLICT (attempt_id, question_id)
		 DO UPDATE SET answer = EXCLUDED.answer, updated_at = NOW()`,
		attemptID, questionID, answer)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return service.ErrAttemptNotActive
	}
	return nil
}

// GetAnswers retrieves all recorded answers for an attempt.
func (r *AttemptRepository) GetAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]json.RawMessage, error) {
	return r.answers(ctx, r.pool, attemptID)
}

// Submit flips an in-progress attempt to submitted and persists its score.
// The row is locked with SELECT ... FOR UPDATE so concurrent submits
// serialize: the first commits the grade, the second sees the flipped status
// and fails with ErrAlreadySubmitted without touching the stored score.
func (r *AttemptRepository) Submit(ctx context.Context, attemptID uuid.UUID, endedAt time.Time, grade service.GradeFunc) (*model.Attempt, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a := &model.Attempt{}
	err = tx.QueryRow(ctx,
		`SELECT id, student_id, exam_id, started_at, ends_at, ended_at, status, score
		 FROM student_exams WHERE id = $1
		 FOR UPDATE`, attemptID,
	).Scan(&a.ID, &a.StudentID, &a.ExamID, &a.StartedAt, &a.EndsAt, &a.EndedAt, &a.Status, &a.Score)
	if err != nil {
		return nil, err
	}

	if a.Status != model.AttemptStatusInProgress {
		return nil, service.ErrAlreadySubmitted
	}

	answers, err := r.answers(ctx, tx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	score, err := grade(ctx, a.ExamID, answers)
	if err != nil {
		return nil, fmt.Errorf("grade attempt: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE student_exams
		 SET status = $2, ended_at = $3, score = $4
		 WHERE id = $1`,
		attemptID, model.AttemptStatusSubmitted, endedAt, score)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	a.Status = model.AttemptStatusSubmitted
	a.EndedAt = &endedAt
	a.Score = &score
	return a, nil
}

// ListByStudent retrieves a student's attempts, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, exam_id, started_at, ends_at, ended_at, status, score
		 FROM student_exams WHERE student_id = $1 ORDER BY started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []model.Attempt{}
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.StudentID, &a.ExamID, &a.StartedAt, &a.EndsAt, &a.EndedAt, &a.Status, &a.Score); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// queryer abstracts pool vs transaction for answer reads.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *AttemptRepository) answers(ctx context.Context, q queryer, attemptID uuid.UUID) (map[uuid.UUID]json.RawMessage, error) {
	rows, err := q.Query(ctx,
		`SELECT question_id, answer FROM student_answers WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[uuid.UUID]json.RawMessage)
	for rows.Next() {
		var questionID uuid.UUID
		var answer json.RawMessage
		if err := rows.Scan(&questionID, &answer); err != nil {
			return nil, err
		}
		answers[questionID] = answer
	}
	return answers, rows.Err()
}
