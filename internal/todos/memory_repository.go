package todos

import (
	"context"
	"sync"

	"github.com/odyssey-erp/todo-api/internal/platform/docstore"
	"github.com/odyssey-erp/todo-api/internal/shared"
)

// MemoryRepository is an in-process Repository for STORE_DRIVER=memory and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Todo
	order []string
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*Todo)}
}

// Insert stores todo and assigns its ID.
func (r *MemoryRepository) Insert(ctx context.Context, todo *Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo.ID = docstore.NewID()
	r.items[todo.ID] = cloneTodo(todo)
	r.order = append(r.order, todo.ID)
	return nil
}

// ListByOwner returns owner's todos in insertion order.
func (r *MemoryRepository) ListByOwner(ctx context.Context, owner string) ([]Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Todo{}
	for _, id := range r.order {
		if todo, ok := r.items[id]; ok && todo.Owner == owner {
			out = append(out, *cloneTodo(todo))
		}
	}
	return out, nil
}

// FindOne returns the todo when owned by owner.
func (r *MemoryRepository) FindOne(ctx context.Context, owner, id string) (*Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	todo, ok := r.owned(owner, id)
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneTodo(todo), nil
}

// Update applies patch to the owned todo.
func (r *MemoryRepository) Update(ctx context.Context, owner, id string, patch Patch) (*Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo, ok := r.owned(owner, id)
	if !ok {
		return nil, shared.ErrNotFound
	}
	if patch.Text != nil {
		todo.Text = *patch.Text
	}
	todo.Completed = patch.Completed
	todo.CompletedAt = nil
	if patch.CompletedAt != nil {
		stamp := *patch.CompletedAt
		todo.CompletedAt = &stamp
	}
	return cloneTodo(todo), nil
}

// Delete removes the owned todo.
func (r *MemoryRepository) Delete(ctx context.Context, owner, id string) (*Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo, ok := r.owned(owner, id)
	if !ok {
		return nil, shared.ErrNotFound
	}
	delete(r.items, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return todo, nil
}

func (r *MemoryRepository) owned(owner, id string) (*Todo, bool) {
	todo, ok := r.items[id]
	if !ok || todo.Owner != owner {
		return nil, false
	}
	return todo, true
}

func cloneTodo(t *Todo) *Todo {
	c := *t
	if t.CompletedAt != nil {
		stamp := *t.CompletedAt
		c.CompletedAt = &stamp
	}
	return &c
}

var _ Repository = (*MemoryRepository)(nil)
