package users

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/todo-api/internal/platform/httpx"
	"github.com/odyssey-erp/todo-api/internal/shared"
)

// CookieConfig controls the session cookie attributes.
type CookieConfig struct {
	Secure bool
	TTL    time.Duration
}

// Handler exposes user registration, login, profile and logout endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	gate     *Gate
	cookie   CookieConfig
	recorder AuthRecorder
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate *Gate, cookie CookieConfig, recorder AuthRecorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Handler{logger: logger, service: service, gate: gate, cookie: cookie, recorder: recorder}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.register)
	r.Post("/login", h.login)
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require)
		r.Get("/me", h.me)
		r.Delete("/me/token", h.logout)
		r.Put("/me/password", h.changePassword)
	})
}

const sessionNotStartedDetail = "account created but no session was started, log in to continue"

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logFailure("register user", err)
		httpx.RespondError(w, err)
		return
	}
	token, err := h.service.IssueSession(r.Context(), user)
	if err != nil {
		// The account exists at this point; a retry would hit the duplicate check.
		h.logger.Error("user registered without session",
			slog.String("user_id", user.ID), slog.Any("error", err))
		h.recorder.RecordAuth(Registered)
		httpx.Problem(w, http.StatusBadRequest, "Session Not Started", sessionNotStartedDetail)
		return
	}
	h.recorder.RecordAuth(Registered)
	h.setCookie(w, token)
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.recorder.RecordAuth(LoginFailed)
		httpx.RespondError(w, shared.ErrInvalidCredentials)
		return
	}
	user, err := h.service.FindByCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logFailure("login", err)
		h.recorder.RecordAuth(LoginFailed)
		httpx.RespondError(w, shared.ErrInvalidCredentials)
		return
	}
	token, err := h.service.IssueSession(r.Context(), user)
	if err != nil {
		h.logger.Error("issue session after login", slog.Any("error", err))
		h.recorder.RecordAuth(LoginFailed)
		httpx.RespondError(w, shared.ErrInvalidCredentials)
		return
	}
	h.recorder.RecordAuth(LoginSucceeded)
	h.setCookie(w, token)
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, User{ID: p.UserID, Email: p.Email})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.RevokeToken(r.Context(), p.UserID, p.Token); err != nil {
		h.logger.Error("revoke token", slog.Any("error", err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.recorder.RecordAuth(LoggedOut)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.logFailure("change password", err)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setCookie(w http.ResponseWriter, token string) {
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if h.cookie.TTL > 0 {
		cookie.Expires = time.Now().Add(h.cookie.TTL)
	}
	http.SetCookie(w, cookie)
}

// logFailure logs store-level failures; expected client errors stay quiet.
func (h *Handler) logFailure(op string, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrDuplicate),
		errors.Is(err, shared.ErrInvalidCredentials):
		return
	}
	h.logger.Error(op, slog.Any("error", err))
}
