package users

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/todo-api/internal/auth"
	"github.com/odyssey-erp/todo-api/internal/shared"
)

type fixture struct {
	repo    *MemoryRepository
	tokens  *auth.TokenIssuer
	service *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := NewMemoryRepository()
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{Secret: "test-secret", TTL: time.Hour, Issuer: "todo-api"})
	require.NoError(t, err)
	service, err := NewService(repo, auth.NewPasswordHasher(bcrypt.MinCost), tokens, ServiceConfig{MinPasswordLength: 8})
	require.NoError(t, err)
	return fixture{repo: repo, tokens: tokens, service: service}
}

func TestRegisterThenFindByCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Register(ctx, "  A@X.com ", "pass1234")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "a@x.com", created.Email)
	assert.NotEqual(t, "pass1234", created.PasswordHash)

	found, err := f.service.FindByCredentials(ctx, "a@x.com", "pass1234")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	body, err := json.Marshal(found)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+created.ID+`","email":"a@x.com"}`, string(body))
	assert.NotContains(t, strings.ToLower(string(body)), "password")
	assert.NotContains(t, strings.ToLower(string(body)), "token")
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"malformed email", "not-an-email", "pass1234"},
		{"empty email", "", "pass1234"},
		{"short password", "a@x.com", "short"},
		{"empty password", "a@x.com", ""},
		{"too long password", "a@x.com", strings.Repeat("p", 73)},
		{"too many bytes", "a@x.com", strings.Repeat("€", 30)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Register(ctx, tc.email, tc.password)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	users, err := f.repo.ListWithTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Register(ctx, "dup@x.com", "pass1234")
	require.NoError(t, err)
	_, err = f.service.Register(ctx, "DUP@x.com", "otherpass99")
	assert.ErrorIs(t, err, shared.ErrDuplicate)
	assert.Equal(t, 1, f.repo.Count("dup@x.com"))
}

func TestFindByCredentialsFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.Register(ctx, "a@x.com", "pass1234")
	require.NoError(t, err)

	_, wrongPassword := f.service.FindByCredentials(ctx, "a@x.com", "wrongpass")
	_, unknownEmail := f.service.FindByCredentials(ctx, "nobody@x.com", "pass1234")

	assert.ErrorIs(t, wrongPassword, shared.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, shared.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.service.Register(ctx, "a@x.com", "pass1234")
	require.NoError(t, err)

	first, err := f.service.IssueSession(ctx, user)
	require.NoError(t, err)
	second, err := f.service.IssueSession(ctx, user)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	for _, tok := range []string{first, second} {
		got, err := f.service.FindByToken(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	}

	require.NoError(t, f.service.RevokeToken(ctx, user.ID, first))

	_, err = f.service.FindByToken(ctx, first)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
	got, err := f.service.FindByToken(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	// Revoking again is a no-op.
	assert.NoError(t, f.service.RevokeToken(ctx, user.ID, first))
}

func TestFindByTokenRejectsUnregisteredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.service.Register(ctx, "a@x.com", "pass1234")
	require.NoError(t, err)

	// Verifies cryptographically but was never stored on the user.
	forged, err := f.tokens.Issue(user.ID)
	require.NoError(t, err)
	_, err = f.service.FindByToken(ctx, forged)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = f.service.FindByToken(ctx, "garbage")
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	ghost, err := f.tokens.Issue("000000000000000000000000")
	require.NoError(t, err)
	_, err = f.service.FindByToken(ctx, ghost)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestConcurrentSessionsAreAllKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.service.Register(ctx, "a@x.com", "pass1234")
	require.NoError(t, err)

	const sessions = 16
	var wg sync.WaitGroup
	tokens := make([]string, sessions)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := *user
			tok, err := f.service.IssueSession(ctx, &u)
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	stored, err := f.repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Tokens, sessions)
	for _, tok := range tokens {
		assert.True(t, stored.HasToken(auth.AccessAuth, tok))
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.service.Register(ctx, "a@x.com", "pass1234")
	require.NoError(t, err)

	err = f.service.ChangePassword(ctx, user.ID, "wrong-current", "newpass5678")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	err = f.service.ChangePassword(ctx, user.ID, "pass1234", "short")
	assert.ErrorIs(t, err, shared.ErrValidation)
	err = f.service.ChangePassword(ctx, user.ID, "pass1234", strings.Repeat("€", 30))
	assert.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, f.service.ChangePassword(ctx, user.ID, "pass1234", "newpass5678"))

	_, err = f.service.FindByCredentials(ctx, "a@x.com", "pass1234")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = f.service.FindByCredentials(ctx, "a@x.com", "newpass5678")
	assert.NoError(t, err)
}

func TestPruneExpiredTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.service.Register(ctx, "a@x.com", "pass1234")
	require.NoError(t, err)

	live, err := f.service.IssueSession(ctx, user)
	require.NoError(t, err)

	expiredIssuer, err := auth.NewTokenIssuer(auth.TokenConfig{Secret: "test-secret", TTL: time.Nanosecond, Issuer: "todo-api"})
	require.NoError(t, err)
	expired, err := expiredIssuer.Issue(user.ID)
	require.NoError(t, err)
	require.NoError(t, f.repo.PushToken(ctx, user.ID, TokenEntry{Access: auth.AccessAuth, Token: expired}))
	require.NoError(t, f.repo.PushToken(ctx, user.ID, TokenEntry{Access: auth.AccessAuth, Token: "not-a-token"}))

	time.Sleep(time.Second + 10*time.Millisecond)

	removed, err := f.service.PruneExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	stored, err := f.repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []TokenEntry{{Access: auth.AccessAuth, Token: live}}, stored.Tokens)
}

type failingRepo struct {
	*MemoryRepository
	err error
}

func (r failingRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	return nil, r.err
}

func TestFindByCredentialsPropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("connection refused")
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{Secret: "s", TTL: time.Hour})
	require.NoError(t, err)
	service, err := NewService(failingRepo{MemoryRepository: NewMemoryRepository(), err: storeErr},
		auth.NewPasswordHasher(bcrypt.MinCost), tokens, ServiceConfig{})
	require.NoError(t, err)

	_, err = service.FindByCredentials(context.Background(), "a@x.com", "pass1234")
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
}
