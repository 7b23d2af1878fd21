package todos

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/todo-api/internal/platform/docstore"
	"github.com/odyssey-erp/todo-api/internal/shared"
)

// Service applies owner scoping and completion rules on top of a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create stores a new todo for owner.
func (s *Service) Create(ctx context.Context, owner, text string) (*Todo, error) {
	todo, err := NewTodo(owner, text, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, todo); err != nil {
		return nil, fmt.Errorf("todos: insert: %w", err)
	}
	return todo, nil
}

// List returns the owner's todos.
func (s *Service) List(ctx context.Context, owner string) ([]Todo, error) {
	items, err := s.repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("todos: list: %w", err)
	}
	if items == nil {
		items = []Todo{}
	}
	return items, nil
}

// Get returns one of the owner's todos.
func (s *Service) Get(ctx context.Context, owner, id string) (*Todo, error) {
	if !docstore.ValidID(id) {
		return nil, shared.ErrNotFound
	}
	return s.repo.FindOne(ctx, owner, id)
}

// Update applies in to one of the owner's todos and returns the result.
func (s *Service) Update(ctx context.Context, owner, id string, in UpdateInput) (*Todo, error) {
	if !docstore.ValidID(id) {
		return nil, shared.ErrNotFound
	}
	patch, err := resolvePatch(in, s.now())
	if err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, owner, id, patch)
}

// Delete removes one of the owner's todos and returns it.
func (s *Service) Delete(ctx context.Context, owner, id string) (*Todo, error) {
	if !docstore.ValidID(id) {
		return nil, shared.ErrNotFound
	}
	return s.repo.Delete(ctx, owner, id)
}
