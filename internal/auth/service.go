// Package auth exchanges credentials for session tokens and revokes them.
package auth

import (
	"context"
	"errors"
	"fmt"

	"accountapi/internal/user"
)

type Service struct {
	users  UserFinder
	hasher PasswordVerifier
	tokens Tokens
}

func NewService(users UserFinder, hasher PasswordVerifier, tokens Tokens) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

type LoginResult struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Image    *string `json:"image"`
	Token    string  `json:"token"`
}

// Login checks the password before the account state, so an inactive
// account only shows as such to someone who knows its password.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return LoginResult{}, ErrAuthFailure
		}
		return LoginResult{}, fmt.Errorf("find user: %w", err)
	}

	if !s.hasher.Verify(password, u.Password) {
		return LoginResult{}, ErrAuthFailure
	}
	if u.Inactive {
		return LoginResult{}, ErrForbiddenInactive
	}

	tok, err := s.tokens.Issue(ctx, u)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	return LoginResult{
		ID:       u.ID,
		Username: u.Username,
		Image:    u.Image,
		Token:    tok,
	}, nil
}

// Logout revokes value. Callers treat logout as successful regardless of
// the returned error, which is only worth logging.
func (s *Service) Logout(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}
	return s.tokens.Delete(ctx, value)
}
