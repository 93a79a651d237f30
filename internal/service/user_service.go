package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/olababsmichael/cbt-exam-system/internal/model"
)

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// UserService handles user account lookups.
type UserService struct {
	users UserStore
}

// NewUserService creates a new UserService.
func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

func (s *UserService) Create(ctx context.Context, u *model.User) error {
	return s.users.Create(ctx, u)
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.users.GetByEmail(ctx, email)
}
