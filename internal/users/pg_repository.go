package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/todo-api/internal/platform/db"
	"github.com/odyssey-erp/todo-api/internal/platform/docstore"
	"github.com/odyssey-erp/todo-api/internal/shared"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Schema holds the DDL for user tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(24) PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_tokens (
		user_id    CHAR(24) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		access     TEXT NOT NULL,
		token      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, token)
	)`,
}

// PGRepository implements Repository using PostgreSQL. Tokens live in
// user_tokens so each append or removal is a single-row statement.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PostgreSQL repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// EnsureSchema creates the user tables when missing.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	return db.Migrate(ctx, r.pool, Schema)
}

// Create inserts user and assigns its ID.
func (r *PGRepository) Create(ctx context.Context, user *User) error {
	id := docstore.NewID()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return shared.ErrDuplicate
		}
		return err
	}
	user.ID = id
	return nil
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*User, error) {
	if !docstore.ValidID(id) {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, `SELECT id, email, password_hash, created_at, updated_at FROM users WHERE id = $1`, id)
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, `SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = $1`, email)
}

// FindByToken fetches a user that still holds token under access.
func (r *PGRepository) FindByToken(ctx context.Context, id, access, token string) (*User, error) {
	if !docstore.ValidID(id) {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, `SELECT u.id, u.email, u.password_hash, u.created_at, u.updated_at
		FROM users u JOIN user_tokens t ON t.user_id = u.id
		WHERE u.id = $1 AND t.access = $2 AND t.token = $3`, id, access, token)
}

// PushToken inserts a token row for the user.
func (r *PGRepository) PushToken(ctx context.Context, id string, entry TokenEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_tokens (user_id, access, token) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		id, entry.Access, entry.Token)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return shared.ErrNotFound
		}
		return err
	}
	return nil
}

// PullToken deletes the token row if present.
func (r *PGRepository) PullToken(ctx context.Context, id, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_tokens WHERE user_id = $1 AND token = $2`, id, token)
	return err
}

// SetPasswordHash replaces the stored password hash.
func (r *PGRepository) SetPasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListWithTokens returns every user holding at least one token.
func (r *PGRepository) ListWithTokens(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.email, t.access, t.token
		FROM user_tokens t JOIN users u ON u.id = t.user_id
		ORDER BY u.id, t.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var id, email string
		var entry TokenEntry
		if err := rows.Scan(&id, &email, &entry.Access, &entry.Token); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].ID != id {
			out = append(out, User{ID: id, Email: email})
		}
		last := &out[len(out)-1]
		last.Tokens = append(last.Tokens, entry)
	}
	return out, rows.Err()
}

func (r *PGRepository) findOne(ctx context.Context, query string, args ...any) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx, query, args...).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	tokens, err := r.loadTokens(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Tokens = tokens
	return &user, nil
}

func (r *PGRepository) loadTokens(ctx context.Context, userID string) ([]TokenEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT access, token FROM user_tokens WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TokenEntry, error) {
		var entry TokenEntry
		err := row.Scan(&entry.Access, &entry.Token)
		return entry, err
	})
}

var _ Repository = (*PGRepository)(nil)
