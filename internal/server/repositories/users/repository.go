// Package users declares the user store contract and its PostgreSQL
// implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository reads and writes principals. Lookups return common.ErrorNotFound
// when no user matches; Create returns common.ErrAlreadyExists for a taken email.
type Repository interface {
	Create(ctx context.Context, email, passwordHash string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	// LockByID takes a row lock on the user until the transaction ends. Every
	// session issuance for the user goes through it first.
	LockByID(ctx context.Context, id string) error
}
