package user

import (
	"context"
	"errors"

	"accountapi/internal/entity"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrAlreadyExists     = errors.New("email already in use")
	ErrInvalidCriteria   = errors.New("criteria must set exactly one field")
	ErrInvalidToken      = errors.New("activation token is invalid or already used")
	ErrInvalidResetToken = errors.New("password reset token is invalid")
	ErrEmailNotInUse     = errors.New("email is not in use")
	ErrEmailFailure      = errors.New("email could not be sent")
	ErrForbidden         = errors.New("operation not permitted for this user")
)

// Criteria selects a single user. Exactly one field must be set.
type Criteria struct {
	ID                 int64
	Email              string
	ActivationToken    string
	PasswordResetToken string
}

// Patch lists the columns an Update changes. Nil pointers and false Clear
// flags leave a column as it is.
type Patch struct {
	Username                *string
	PasswordHash            *string
	Inactive                *bool
	Image                   *string
	ClearActivationToken    bool
	PasswordResetToken      *string
	ClearPasswordResetToken bool
}

func (p Patch) empty() bool {
	return p.Username == nil && p.PasswordHash == nil && p.Inactive == nil && p.Image == nil &&
		!p.ClearActivationToken && p.PasswordResetToken == nil && !p.ClearPasswordResetToken
}

//go:generate mockgen -destination=mock_ports.go -package=user accountapi/internal/user Repository,Hasher,Mailer,TokenInvalidator

type Repository interface {
	// Create inserts u and then calls confirm inside the same transaction.
	// A confirm error rolls the insert back and is returned unchanged.
	Create(ctx context.Context, u entity.User, confirm func(context.Context, entity.User) error) (entity.User, error)
	Find(ctx context.Context, c Criteria) (entity.User, error)
	// Update applies p to the user matched by c and returns the new row.
	Update(ctx context.Context, c Criteria, p Patch) (entity.User, error)
	Delete(ctx context.Context, id int64) error
	// ListActive pages through active users ordered by id, skipping excludeID.
	ListActive(ctx context.Context, excludeID int64, limit, offset int) ([]entity.User, int, error)
}

type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

type Mailer interface {
	SendAccountActivation(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// TokenInvalidator revokes every session of a user.
type TokenInvalidator interface {
	InvalidateAll(ctx context.Context, userID int64) error
}
