package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accountapi/internal/entity"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *PostgresRepo) Create(ctx context.Context, t entity.Token) error {
	const op = "token.PostgresRepo.Create"
	const query = `
	INSERT INTO tokens (value, user_id, last_used_at)
	VALUES ($1, $2, $3)
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.db.Exec(timeoutCtx, query, t.Value, t.UserID, t.LastUsedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return ErrAlreadyExists
			case pgerrcode.ForeignKeyViolation:
				return fmt.Errorf("%s: user %d: %w", op, t.UserID, ErrUnpersistedUser)
			}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, value string) (entity.Token, error) {
	const op = "token.PostgresRepo.Get"
	const query = `
	SELECT value, user_id, last_used_at
	FROM tokens
	WHERE value = $1
	LIMIT 1
	`
	var t entity.Token
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query, value).Scan(&t.Value, &t.UserID, &t.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.Token{}, ErrNotFound
		}
		return entity.Token{}, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// Touch checks freshness and refreshes in one statement, so a row that has
// already expired is never brought back.
func (r *PostgresRepo) Touch(ctx context.Context, value string, now, notBefore time.Time) (int64, error) {
	const op = "token.PostgresRepo.Touch"
	const query = `
	UPDATE tokens
	SET last_used_at = GREATEST(last_used_at, $2)
	WHERE value = $1 AND last_used_at > $3
	RETURNING user_id
	`
	var userID int64
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query, value, now, notBefore).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return userID, nil
}

func (r *PostgresRepo) DeleteByValue(ctx context.Context, value string) error {
	const op = "token.PostgresRepo.DeleteByValue"
	const query = `DELETE FROM tokens WHERE value = $1`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.Exec(timeoutCtx, query, value); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *PostgresRepo) DeleteByUserID(ctx context.Context, userID int64) error {
	const op = "token.PostgresRepo.DeleteByUserID"
	const query = `DELETE FROM tokens WHERE user_id = $1`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.Exec(timeoutCtx, query, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *PostgresRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "token.PostgresRepo.DeleteOlderThan"
	const query = `DELETE FROM tokens WHERE last_used_at <= $1`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	result, err := r.db.Exec(timeoutCtx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return result.RowsAffected(), nil
}
