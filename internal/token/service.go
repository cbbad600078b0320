// Package token owns opaque session tokens: issuance, verification with a
// sliding expiration window, deletion and the periodic sweep of stale rows.
//
// Tokens are never cached in memory; every Verify is a storage round-trip.
// A Verify can succeed an instant before a concurrent sweep, logout or
// InvalidateAll removes the row. That is tolerated: the row is gone and the
// client has to log in again on its next request.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accountapi/internal/entity"
	"accountapi/internal/platform/crypto"

	"github.com/rs/zerolog"
)

const (
	DefaultExpirationWindow = 7 * 24 * time.Hour
	DefaultSweepInterval    = time.Hour
	DefaultBytes            = 32
)

type Config struct {
	ExpirationWindow time.Duration
	SweepInterval    time.Duration
	Bytes            int
}

func DefaultConfig() Config {
	return Config{
		ExpirationWindow: DefaultExpirationWindow,
		SweepInterval:    DefaultSweepInterval,
		Bytes:            DefaultBytes,
	}
}

// Resolution is the outcome of Verify: either resolved to a user id or not.
type Resolution struct {
	userID int64
}

func Resolved(userID int64) Resolution { return Resolution{userID: userID} }

// Unresolved covers unknown, expired and malformed tokens alike.
var Unresolved = Resolution{}

func (r Resolution) UserID() (int64, bool) {
	return r.userID, r.userID > 0
}

type Service struct {
	repo    Repository
	cfg     Config
	clock   Clock
	log     zerolog.Logger
	metrics *Metrics
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.ExpirationWindow <= 0 {
		cfg.ExpirationWindow = def.ExpirationWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.Bytes < DefaultBytes {
		cfg.Bytes = def.Bytes
	}

	s := &Service{
		repo:  repo,
		cfg:   cfg,
		clock: SystemClock,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Config() Config { return s.cfg }

// Issue mints a new token for a persisted user and stores it with
// last_used_at set to now.
func (s *Service) Issue(ctx context.Context, u entity.User) (string, error) {
	if !u.Persisted() {
		return "", ErrUnpersistedUser
	}

	value, err := crypto.RandomHex(s.cfg.Bytes)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	t := entity.Token{
		Value:      value,
		UserID:     u.ID,
		LastUsedAt: s.clock.Now(),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	s.metrics.issuedInc()
	return value, nil
}

// Verify resolves a token to its owner and slides its window forward. The
// freshness check and the refresh happen in one conditional write, so an
// expired token can never be revived.
func (s *Service) Verify(ctx context.Context, value string) (Resolution, error) {
	if value == "" {
		s.metrics.verified(resultUnresolved)
		return Unresolved, nil
	}

	now := s.clock.Now()
	userID, err := s.repo.Touch(ctx, value, now, now.Add(-s.cfg.ExpirationWindow))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.verified(resultUnresolved)
			return Unresolved, nil
		}
		s.metrics.verified(resultError)
		return Unresolved, fmt.Errorf("verify token: %w", err)
	}

	s.metrics.verified(resultResolved)
	return Resolved(userID), nil
}

// Delete removes a single token. Unknown values are not an error.
func (s *Service) Delete(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}
	if err := s.repo.DeleteByValue(ctx, value); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// InvalidateAll removes every token owned by userID.
func (s *Service) InvalidateAll(ctx context.Context, userID int64) error {
	if err := s.repo.DeleteByUserID(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("invalidate tokens of user %d: %w", userID, err)
	}
	return nil
}

// Sweep deletes every token Verify would reject at this instant.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.cfg.ExpirationWindow)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep tokens: %w", err)
	}
	s.metrics.sweptAdd(n, s.clock.Now())
	return n, nil
}
