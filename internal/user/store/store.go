package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"linkgate/internal/user"
)

// Store is the persistence port for account records.
//
// Error contract: methods return sentinel.ErrNotFound (optionally wrapped)
// when the requested user does not exist, nil on success, and wrapped
// infrastructure errors otherwise.
type Store interface {
	Create(ctx context.Context, u *user.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}
