package token

import (
	"context"
	"errors"
	"time"

	"accountapi/internal/entity"
)

var (
	// ErrNotFound is returned by the repository when no row matched.
	ErrNotFound = errors.New("token not found")
	// ErrAlreadyExists is returned by Create on a duplicate value.
	ErrAlreadyExists = errors.New("token already exists")
	// ErrUnpersistedUser is returned by Issue for a user without an id.
	ErrUnpersistedUser = errors.New("cannot issue token for unpersisted user")
)

//go:generate mockgen -destination=mock_repository.go -package=token accountapi/internal/token Repository

// Repository persists session tokens.
type Repository interface {
	Create(ctx context.Context, t entity.Token) error
	Get(ctx context.Context, value string) (entity.Token, error)
	// Touch sets last_used_at to now for the token with the given value, but
	// only if its current last_used_at is strictly after notBefore. It returns
	// the owner id, or ErrNotFound when no row satisfied both conditions.
	Touch(ctx context.Context, value string, now, notBefore time.Time) (int64, error)
	DeleteByValue(ctx context.Context, value string) error
	DeleteByUserID(ctx context.Context, userID int64) error
	// DeleteOlderThan removes every token whose last_used_at <= cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}
