package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/studycircle/studycircle-backend/internal/model"
)

// UserRepository reads the local mirror of the external user directory.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Lookup retrieves a directory entry by id.
func (r *UserRepository) Lookup(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, display_name, is_active, total_exams, total_marks, average_score,
		        last_active, created_at
		 FROM users
		 WHERE id = $1`, id,
	).Scan(&u.ID, &u.DisplayName, &u.IsActive, &u.TotalExams, &u.TotalMarks,
		&u.AverageScore, &u.LastActive, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// TouchLastActive records when the user was last seen online.
func (r *UserRepository) TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET last_active = $1 WHERE id = $2`, at, id)
	return err
}

// RecordExamResult folds a graded exam into the user's running totals. The
// average is derived in the same statement so the three columns cannot drift.
func (r *UserRepository) RecordExamResult(ctx context.Context, id uuid.UUID, marks float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET total_exams   = total_exams + 1,
		     total_marks   = total_marks + $1,
		     average_score = (total_marks + $1) / (total_exams + 1)
		 WHERE id = $2`, marks, id)
	return err
}

// Create inserts a directory entry. Used by the seed tool; the live mirror is
// normally maintained by the identity service.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO users (display_name, is_active)
		 VALUES ($1, $2)
		 RETURNING id, created_at`,
		u.DisplayName, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
}
