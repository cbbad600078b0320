// Package user manages accounts: registration with e-mail activation,
// listing and lookup, profile updates, deletion and password reset.
package user

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"accountapi/internal/entity"
	"accountapi/internal/file"
	"accountapi/internal/platform/crypto"

	"github.com/rs/zerolog"
)

const (
	activationTokenLength = 16
	resetTokenLength      = 16

	defaultPageSize = 10
	maxPageSize     = 10
	maxPage         = math.MaxInt32
)

type Service struct {
	repo   Repository
	hasher Hasher
	mailer Mailer
	files  file.Store
	tokens TokenInvalidator
	log    zerolog.Logger
}

func NewService(repo Repository, hasher Hasher, mailer Mailer, files file.Store, tokens TokenInvalidator, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		mailer: mailer,
		files:  files,
		tokens: tokens,
		log:    log,
	}
}

// NormalizeEmail is applied on every write and lookup so that uniqueness
// and login agree on what counts as the same address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailInUse reports whether an account already owns email.
func (s *Service) EmailInUse(ctx context.Context, email string) (bool, error) {
	_, err := s.repo.Find(ctx, Criteria{Email: NormalizeEmail(email)})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Register creates an inactive account and mails its activation token. The
// account is only kept if the mail went out.
func (s *Service) Register(ctx context.Context, username, email, password string) (entity.User, error) {
	email = NormalizeEmail(email)

	inUse, err := s.EmailInUse(ctx, email)
	if err != nil {
		return entity.User{}, err
	}
	if inUse {
		return entity.User{}, ErrAlreadyExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return entity.User{}, fmt.Errorf("hash password: %w", err)
	}
	activation, err := crypto.RandomString(activationTokenLength)
	if err != nil {
		return entity.User{}, err
	}

	u := entity.User{
		Username:        username,
		Email:           email,
		Password:        hash,
		Inactive:        true,
		ActivationToken: &activation,
	}
	created, err := s.repo.Create(ctx, u, func(ctx context.Context, created entity.User) error {
		if err := s.mailer.SendAccountActivation(ctx, created.Email, activation); err != nil {
			return fmt.Errorf("%w: %v", ErrEmailFailure, err)
		}
		return nil
	})
	if err != nil {
		return entity.User{}, err
	}

	s.log.Info().Int64("user_id", created.ID).Msg("user registered")
	return created, nil
}

// Activate turns on the account holding token and consumes the token.
func (s *Service) Activate(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	active := false
	_, err := s.repo.Update(ctx, Criteria{ActivationToken: token}, Patch{
		Inactive:             &active,
		ClearActivationToken: true,
	})
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidToken
	}
	return err
}

type Page struct {
	Content    []entity.Summary `json:"content"`
	Page       int              `json:"page"`
	Size       int              `json:"size"`
	TotalPages int              `json:"totalPages"`
}

// List pages through active users, leaving out viewerID (0 for anonymous).
func (s *Service) List(ctx context.Context, page, size int, viewerID int64) (Page, error) {
	if page < 0 {
		page = 0
	}
	if page > maxPage {
		page = maxPage
	}
	if size < 1 || size > maxPageSize {
		size = defaultPageSize
	}

	users, total, err := s.repo.ListActive(ctx, viewerID, size, page*size)
	if err != nil {
		return Page{}, err
	}

	content := make([]entity.Summary, 0, len(users))
	for _, u := range users {
		content = append(content, u.Summary())
	}
	return Page{
		Content:    content,
		Page:       page,
		Size:       size,
		TotalPages: int(math.Ceil(float64(total) / float64(size))),
	}, nil
}

// Get returns an active user.
func (s *Service) Get(ctx context.Context, id int64) (entity.User, error) {
	if id <= 0 {
		return entity.User{}, ErrNotFound
	}
	u, err := s.repo.Find(ctx, Criteria{ID: id})
	if err != nil {
		return entity.User{}, err
	}
	if u.Inactive {
		return entity.User{}, ErrNotFound
	}
	return u, nil
}

// FindByEmail looks up any user, active or not.
func (s *Service) FindByEmail(ctx context.Context, email string) (entity.User, error) {
	return s.repo.Find(ctx, Criteria{Email: NormalizeEmail(email)})
}

type UpdateInput struct {
	Username string
	// Image is the decoded profile image; nil keeps the current one.
	Image []byte
}

// Update changes the caller's own profile. A replaced image is removed from
// the file store once the new one is recorded.
func (s *Service) Update(ctx context.Context, actorID, id int64, in UpdateInput) (entity.User, error) {
	if actorID == 0 || actorID != id {
		return entity.User{}, ErrForbidden
	}

	current, err := s.repo.Find(ctx, Criteria{ID: id})
	if err != nil {
		return entity.User{}, err
	}

	patch := Patch{Username: &in.Username}
	var saved string
	if in.Image != nil {
		saved, err = s.files.Save(ctx, in.Image)
		if err != nil {
			return entity.User{}, fmt.Errorf("save image: %w", err)
		}
		patch.Image = &saved
	}

	updated, err := s.repo.Update(ctx, Criteria{ID: id}, patch)
	if err != nil {
		if saved != "" {
			s.removeImage(ctx, saved)
		}
		return entity.User{}, err
	}

	if saved != "" && current.Image != nil {
		s.removeImage(ctx, *current.Image)
	}
	return updated, nil
}

// Delete removes the caller's own account after revoking its sessions.
// Deleting an account that is already gone succeeds.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == 0 || actorID != id {
		return ErrForbidden
	}

	u, err := s.repo.Find(ctx, Criteria{ID: id})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.tokens.InvalidateAll(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if u.Image != nil {
		s.removeImage(ctx, *u.Image)
	}

	s.log.Info().Int64("user_id", id).Msg("user deleted")
	return nil
}

// RequestPasswordReset stores a fresh reset token and mails it.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return ErrEmailNotInUse
	}
	if err != nil {
		return err
	}

	reset, err := crypto.RandomString(resetTokenLength)
	if err != nil {
		return err
	}
	if _, err := s.repo.Update(ctx, Criteria{ID: u.ID}, Patch{PasswordResetToken: &reset}); err != nil {
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, u.Email, reset); err != nil {
		return fmt.Errorf("%w: %v", ErrEmailFailure, err)
	}
	return nil
}

// CheckResetToken reports ErrInvalidResetToken unless token belongs to a user.
func (s *Service) CheckResetToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	_, err := s.repo.Find(ctx, Criteria{PasswordResetToken: token})
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidResetToken
	}
	return err
}

// ResetPassword sets a new password for the holder of token. It consumes
// the token, activates the account and revokes every existing session.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	u, err := s.repo.Find(ctx, Criteria{PasswordResetToken: token})
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	active := false
	_, err = s.repo.Update(ctx, Criteria{ID: u.ID}, Patch{
		PasswordHash:            &hash,
		ClearPasswordResetToken: true,
		Inactive:                &active,
		ClearActivationToken:    true,
	})
	if err != nil {
		return err
	}

	return s.tokens.InvalidateAll(ctx, u.ID)
}

func (s *Service) removeImage(ctx context.Context, name string) {
	if err := s.files.Delete(ctx, name); err != nil {
		s.log.Warn().Err(err).Str("image", name).Msg("could not remove profile image")
	}
}
