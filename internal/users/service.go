package users

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/todo-api/internal/auth"
	"github.com/odyssey-erp/todo-api/internal/shared"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// TokenIssuer issues and verifies session tokens.
type TokenIssuer interface {
	Issue(subject string) (string, error)
	Verify(token string) (*auth.Claims, error)
}

// ServiceConfig tunes the user service.
type ServiceConfig struct {
	MinPasswordLength int
}

// Service implements registration, login and session bookkeeping.
type Service struct {
	repo              Repository
	hasher            PasswordHasher
	tokens            TokenIssuer
	minPasswordLength int
	decoyDigest       string
	now               func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, hasher PasswordHasher, tokens TokenIssuer, cfg ServiceConfig) (*Service, error) {
	minLen := cfg.MinPasswordLength
	if minLen <= 0 {
		minLen = DefaultMinPasswordLength
	}
	// Compared against when an email is unknown so both login failures cost a hash.
	decoy, err := hasher.Hash("decoy-password-never-matches")
	if err != nil {
		return nil, fmt.Errorf("users: prepare decoy digest: %w", err)
	}
	return &Service{
		repo:              repo,
		hasher:            hasher,
		tokens:            tokens,
		minPasswordLength: minLen,
		decoyDigest:       decoy,
		now:               time.Now,
	}, nil
}

// Register validates input, hashes the password and persists a new user.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	creds, err := NewCredentials(email, password, s.minPasswordLength)
	if err != nil {
		return nil, err
	}
	digest, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		Email:        creds.Email,
		PasswordHash: digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("users: create: %w", err)
	}
	return user, nil
}

// FindByCredentials authenticates email/password. Unknown emails and wrong
// passwords both yield shared.ErrInvalidCredentials.
func (s *Service) FindByCredentials(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.hasher.Verify(password, s.decoyDigest)
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("users: find by email: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// FindByToken resolves a session token to its user. The token must verify
// and still be registered on the user; otherwise shared.ErrUnauthenticated.
func (s *Service) FindByToken(ctx context.Context, token string) (*User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, shared.ErrUnauthenticated
	}
	user, err := s.repo.FindByToken(ctx, claims.Subject, auth.AccessAuth, token)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnauthenticated
		}
		return nil, fmt.Errorf("users: find by token: %w", err)
	}
	return user, nil
}

// IssueSession signs a new token for user and appends it to the user's
// token list. Previously issued tokens stay valid.
func (s *Service) IssueSession(ctx context.Context, user *User) (string, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", err
	}
	entry := TokenEntry{Access: auth.AccessAuth, Token: token}
	if err := s.repo.PushToken(ctx, user.ID, entry); err != nil {
		return "", fmt.Errorf("users: push token: %w", err)
	}
	user.Tokens = append(user.Tokens, entry)
	return token, nil
}

// RevokeToken removes token from the user's list. Removing an absent token is a no-op.
func (s *Service) RevokeToken(ctx context.Context, userID, token string) error {
	if err := s.repo.PullToken(ctx, userID, token); err != nil {
		return fmt.Errorf("users: pull token: %w", err)
	}
	return nil
}

// ChangePassword replaces the password hash after checking the current password.
// It is the only write path for the password field besides Register.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("users: find by id: %w", err)
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return shared.ErrInvalidCredentials
	}
	if err := validatePassword(next, s.minPasswordLength); err != nil {
		return err
	}
	digest, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.repo.SetPasswordHash(ctx, userID, digest); err != nil {
		return fmt.Errorf("users: set password: %w", err)
	}
	return nil
}

// PruneExpiredTokens drops token entries that no longer verify or that
// encode a different user. It returns the number of entries removed.
func (s *Service) PruneExpiredTokens(ctx context.Context) (int, error) {
	holders, err := s.repo.ListWithTokens(ctx)
	if err != nil {
		return 0, fmt.Errorf("users: list token holders: %w", err)
	}
	var removed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range holders {
		user := holders[i]
		g.Go(func() error {
			for _, entry := range user.Tokens {
				claims, err := s.tokens.Verify(entry.Token)
				if err == nil && claims.Subject == user.ID && entry.Access == auth.AccessAuth {
					continue
				}
				if err := s.repo.PullToken(gctx, user.ID, entry.Token); err != nil {
					return fmt.Errorf("users: prune token for %s: %w", user.ID, err)
				}
				removed.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	return int(removed.Load()), err
}
