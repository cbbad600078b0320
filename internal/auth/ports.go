package auth

import (
	"context"
	"errors"

	"accountapi/internal/entity"
)

var (
	// ErrAuthFailure covers an unknown e-mail and a wrong password alike.
	ErrAuthFailure = errors.New("authentication failure")
	// ErrForbiddenInactive is returned for correct credentials on an
	// account that has not been activated.
	ErrForbiddenInactive = errors.New("account is inactive")
)

//go:generate mockgen -destination=mock_ports.go -package=auth accountapi/internal/auth UserFinder,PasswordVerifier,Tokens

type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (entity.User, error)
}

type PasswordVerifier interface {
	Verify(plain, digest string) bool
}

type Tokens interface {
	Issue(ctx context.Context, u entity.User) (string, error)
	Delete(ctx context.Context, value string) error
}
