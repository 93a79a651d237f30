package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/olababsmichael/cbt-exam-system/internal/model"
)

// ExamRepository handles exam data access. Exams are append-only: there are
// no update or delete statements here on purpose.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// CreateExam inserts a new exam.
func (r *ExamRepository) CreateExam(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, duration_minutes, created_by)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		e.Title, e.DurationMinutes, e.CreatedBy,
	).Scan(&e.ID, &e.CreatedAt)
}

// GetExam retrieves an exam by id.
func (r *ExamRepository) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, created_by, created_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListExams retrieves all exams, newest first.
func (r *ExamRepository) ListExams(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, duration_minutes, created_by, created_at
		 FROM exams ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
