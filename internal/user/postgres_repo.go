package user

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"accountapi/internal/entity"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, email, password_hash, inactive, activation_token, password_reset_token, image, created_at, updated_at`

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

func scanUser(row pgx.Row) (entity.User, error) {
	var u entity.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.Password, &u.Inactive,
		&u.ActivationToken, &u.PasswordResetToken, &u.Image,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.User{}, ErrNotFound
		}
		return entity.User{}, err
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (r *PostgresRepo) Create(ctx context.Context, u entity.User, confirm func(context.Context, entity.User) error) (entity.User, error) {
	const op = "user.PostgresRepo.Create"
	const query = `
	INSERT INTO users (username, email, password_hash, inactive, activation_token)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING ` + userColumns

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return entity.User{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(context.Background()) }()

	timeoutCtx, cancel := r.withTimeout(ctx)
	created, err := scanUser(tx.QueryRow(timeoutCtx, query, u.Username, u.Email, u.Password, u.Inactive, u.ActivationToken))
	cancel()
	if err != nil {
		if isUniqueViolation(err) {
			return entity.User{}, ErrAlreadyExists
		}
		return entity.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if confirm != nil {
		if err := confirm(ctx, created); err != nil {
			return entity.User{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return entity.User{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return created, nil
}

// where appends c's value to args and returns the matching predicate.
func (c Criteria) where(args []any) (string, []any, error) {
	var col string
	var val any
	set := 0
	if c.ID != 0 {
		col, val = "id", c.ID
		set++
	}
	if c.Email != "" {
		col, val = "email", c.Email
		set++
	}
	if c.ActivationToken != "" {
		col, val = "activation_token", c.ActivationToken
		set++
	}
	if c.PasswordResetToken != "" {
		col, val = "password_reset_token", c.PasswordResetToken
		set++
	}
	if set != 1 {
		return "", nil, ErrInvalidCriteria
	}
	args = append(args, val)
	return col + " = $" + strconv.Itoa(len(args)), args, nil
}

func (r *PostgresRepo) Find(ctx context.Context, c Criteria) (entity.User, error) {
	where, args, err := c.where(nil)
	if err != nil {
		return entity.User{}, err
	}
	query := "SELECT " + userColumns + " FROM users WHERE " + where + " LIMIT 1"

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanUser(r.db.QueryRow(timeoutCtx, query, args...))
}

func (r *PostgresRepo) Update(ctx context.Context, c Criteria, p Patch) (entity.User, error) {
	if p.empty() {
		return r.Find(ctx, c)
	}

	fields := []string{}
	args := []any{}
	set := func(col string, v any) {
		args = append(args, v)
		fields = append(fields, col+" = $"+strconv.Itoa(len(args)))
	}

	if p.Username != nil {
		set("username", *p.Username)
	}
	if p.PasswordHash != nil {
		set("password_hash", *p.PasswordHash)
	}
	if p.Inactive != nil {
		set("inactive", *p.Inactive)
	}
	if p.Image != nil {
		set("image", *p.Image)
	}
	if p.ClearActivationToken {
		fields = append(fields, "activation_token = NULL")
	}
	if p.PasswordResetToken != nil {
		set("password_reset_token", *p.PasswordResetToken)
	} else if p.ClearPasswordResetToken {
		fields = append(fields, "password_reset_token = NULL")
	}
	fields = append(fields, "updated_at = now()")

	where, args, err := c.where(args)
	if err != nil {
		return entity.User{}, err
	}

	query := "UPDATE users SET " + strings.Join(fields, ", ") + " WHERE " + where + " RETURNING " + userColumns
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanUser(r.db.QueryRow(timeoutCtx, query, args...))
}

func (r *PostgresRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM users WHERE id = $1`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.db.Exec(timeoutCtx, query, id)
	return err
}

func (r *PostgresRepo) ListActive(ctx context.Context, excludeID int64, limit, offset int) ([]entity.User, int, error) {
	const countQuery = `SELECT count(*) FROM users WHERE inactive = false AND id <> $1`
	const listQuery = `
	SELECT ` + userColumns + `
	FROM users
	WHERE inactive = false AND id <> $1
	ORDER BY id
	LIMIT $2 OFFSET $3
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var total int
	if err := r.db.QueryRow(timeoutCtx, countQuery, excludeID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(timeoutCtx, listQuery, excludeID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []entity.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}
