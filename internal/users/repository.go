package users

import "context"

// Repository defines persistence operations for user records. Implementations
// return shared.ErrNotFound for missing records and shared.ErrDuplicate when
// the email is already registered. Token appends and removals must be atomic
// at the store so concurrent sessions do not clobber each other.
type Repository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByToken returns the user with id only if it still holds token under access.
	FindByToken(ctx context.Context, id, access, token string) (*User, error)
	PushToken(ctx context.Context, id string, entry TokenEntry) error
	PullToken(ctx context.Context, id, token string) error
	SetPasswordHash(ctx context.Context, id, hash string) error
	// ListWithTokens returns every user holding at least one token.
	ListWithTokens(ctx context.Context) ([]User, error)
}
