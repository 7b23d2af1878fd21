package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/todo-api/internal/platform/httpx"
	"github.com/odyssey-erp/todo-api/internal/shared"
)

// CookieName carries the session token.
const CookieName = "token"

// Auth outcomes reported to an AuthRecorder.
const (
	AuthAccepted   = "accepted"
	AuthRejected   = "rejected"
	LoginSucceeded = "login_succeeded"
	LoginFailed    = "login_failed"
	Registered     = "registered"
	LoggedOut      = "logged_out"
)

// AuthRecorder receives authentication outcomes, typically for metrics.
type AuthRecorder interface {
	RecordAuth(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuth(string) {}

// Gate resolves the session cookie to a user before protected handlers run.
type Gate struct {
	service  *Service
	logger   *slog.Logger
	recorder AuthRecorder
}

// NewGate constructs a Gate. recorder may be nil.
func NewGate(service *Service, logger *slog.Logger, recorder AuthRecorder) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Gate{service: service, logger: logger, recorder: recorder}
}

// Require rejects the request with 401 unless a live session token is presented.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil || cookie.Value == "" {
			g.reject(w)
			return
		}
		user, err := g.service.FindByToken(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, shared.ErrUnauthenticated) {
				g.logger.Error("resolve session token", slog.Any("error", err))
			}
			g.reject(w)
			return
		}
		g.recorder.RecordAuth(AuthAccepted)
		ctx := shared.ContextWithPrincipal(r.Context(), &shared.Principal{
			UserID: user.ID,
			Email:  user.Email,
			Token:  cookie.Value,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gate) reject(w http.ResponseWriter) {
	g.recorder.RecordAuth(AuthRejected)
	httpx.RespondError(w, shared.ErrUnauthenticated)
}
