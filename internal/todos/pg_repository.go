package todos

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/todo-api/internal/platform/db"
	"github.com/odyssey-erp/todo-api/internal/platform/docstore"
	"github.com/odyssey-erp/todo-api/internal/shared"
)

// Schema holds the DDL for the todos table. It depends on the users table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS todos (
		id           CHAR(24) PRIMARY KEY,
		owner_id     CHAR(24) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		text         TEXT NOT NULL,
		completed    BOOLEAN NOT NULL DEFAULT FALSE,
		completed_at BIGINT,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS todos_owner_idx ON todos (owner_id, created_at)`,
}

const todoColumns = `id, owner_id, text, completed, completed_at, created_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PostgreSQL repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// EnsureSchema creates the todos table when missing.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	return db.Migrate(ctx, r.pool, Schema)
}

// Insert stores todo and assigns its ID.
func (r *PGRepository) Insert(ctx context.Context, todo *Todo) error {
	id := docstore.NewID()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO todos (id, owner_id, text, completed, completed_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, todo.Owner, todo.Text, todo.Completed, todo.CompletedAt, todo.CreatedAt)
	if err != nil {
		return err
	}
	todo.ID = id
	return nil
}

// ListByOwner returns owner's todos oldest first.
func (r *PGRepository) ListByOwner(ctx context.Context, owner string) ([]Todo, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+todoColumns+` FROM todos WHERE owner_id = $1 ORDER BY created_at, id`, owner)
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(rows, scanTodo)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Todo{}
	}
	return items, nil
}

// FindOne returns the todo when owned by owner.
func (r *PGRepository) FindOne(ctx context.Context, owner, id string) (*Todo, error) {
	return r.one(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = $1 AND owner_id = $2`, id, owner)
}

// Update applies patch to the owned todo and returns the new state.
func (r *PGRepository) Update(ctx context.Context, owner, id string, patch Patch) (*Todo, error) {
	return r.one(ctx, `UPDATE todos
		SET text = COALESCE($3, text), completed = $4, completed_at = $5
		WHERE id = $1 AND owner_id = $2
		RETURNING `+todoColumns, id, owner, patch.Text, patch.Completed, patch.CompletedAt)
}

// Delete removes the owned todo and returns it.
func (r *PGRepository) Delete(ctx context.Context, owner, id string) (*Todo, error) {
	return r.one(ctx, `DELETE FROM todos WHERE id = $1 AND owner_id = $2 RETURNING `+todoColumns, id, owner)
}

func (r *PGRepository) one(ctx context.Context, query string, args ...any) (*Todo, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	todo, err := pgx.CollectOneRow(rows, scanTodo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &todo, nil
}

func scanTodo(row pgx.CollectableRow) (Todo, error) {
	var t Todo
	err := row.Scan(&t.ID, &t.Owner, &t.Text, &t.Completed, &t.CompletedAt, &t.CreatedAt)
	return t, err
}

var _ Repository = (*PGRepository)(nil)
