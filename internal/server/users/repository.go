package users

import (
	"context"
)

// Repository persists verified users. Lookups of a missing user return
// common.ErrNotFound; a duplicate email or student id on Create returns
// common.ErrConflict.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, user *User) error
	StudentIDTaken(ctx context.Context, studentID string) (bool, error)
}
