package users

import (
	"context"
	"sync"

	"github.com/odyssey-erp/todo-api/internal/platform/docstore"
	"github.com/odyssey-erp/todo-api/internal/shared"
)

// MemoryRepository is an in-process Repository used by STORE_DRIVER=memory
// and by tests. It owns its data, so it serialises access with a mutex.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	order   []string
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

// Create stores user and assigns its ID.
func (r *MemoryRepository) Create(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[user.Email]; exists {
		return shared.ErrDuplicate
	}
	user.ID = docstore.NewID()
	stored := cloneUser(user)
	r.byID[user.ID] = stored
	r.byEmail[user.Email] = user.ID
	r.order = append(r.order, user.ID)
	return nil
}

// FindByID fetches a user by id.
func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneUser(user), nil
}

// FindByEmail fetches a user by normalised email.
func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneUser(r.byID[id]), nil
}

// FindByToken fetches a user that still holds token.
func (r *MemoryRepository) FindByToken(ctx context.Context, id, access, token string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok || !user.HasToken(access, token) {
		return nil, shared.ErrNotFound
	}
	return cloneUser(user), nil
}

// PushToken appends entry to the user's token list.
func (r *MemoryRepository) PushToken(ctx context.Context, id string, entry TokenEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	user.Tokens = append(user.Tokens, entry)
	return nil
}

// PullToken removes every entry matching token.
func (r *MemoryRepository) PullToken(ctx context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return nil
	}
	kept := user.Tokens[:0]
	for _, entry := range user.Tokens {
		if entry.Token != token {
			kept = append(kept, entry)
		}
	}
	user.Tokens = kept
	return nil
}

// SetPasswordHash replaces the stored password hash.
func (r *MemoryRepository) SetPasswordHash(ctx context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	user.PasswordHash = hash
	return nil
}

// ListWithTokens returns users holding at least one token, in creation order.
func (r *MemoryRepository) ListWithTokens(ctx context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []User
	for _, id := range r.order {
		user := r.byID[id]
		if len(user.Tokens) > 0 {
			out = append(out, *cloneUser(user))
		}
	}
	return out, nil
}

// Count returns the number of stored users with email.
func (r *MemoryRepository) Count(email string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, user := range r.byID {
		if user.Email == email {
			n++
		}
	}
	return n
}

func cloneUser(u *User) *User {
	c := *u
	c.Tokens = append([]TokenEntry(nil), u.Tokens...)
	return &c
}

var _ Repository = (*MemoryRepository)(nil)
