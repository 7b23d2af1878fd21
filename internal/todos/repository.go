package todos

import "context"

// Repository persists todos. Every lookup is filtered by owner as well as id;
// a todo owned by someone else is reported as shared.ErrNotFound.
type Repository interface {
	Insert(ctx context.Context, todo *Todo) error
	ListByOwner(ctx context.Context, owner string) ([]Todo, error)
	FindOne(ctx context.Context, owner, id string) (*Todo, error)
	Update(ctx context.Context, owner, id string, patch Patch) (*Todo, error)
	Delete(ctx context.Context, owner, id string) (*Todo, error)
}
