package todos

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/todo-api/internal/platform/docstore"
	"github.com/odyssey-erp/todo-api/internal/platform/httpx"
	"github.com/odyssey-erp/todo-api/internal/shared"
)

// Handler exposes owner-scoped todo endpoints. It expects an authentication
// middleware to have placed a shared.Principal in the request context.
type Handler struct {
	logger  *slog.Logger
	service *Service
	auth    func(http.Handler) http.Handler
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, auth func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, auth: auth}
}

// MountRoutes registers todo routes behind the authentication middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.auth)
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

type createRequest struct {
	Text string `json:"text"`
}

// updateRequest keeps completed raw so any non-true value clears completion
// instead of failing the decode.
type updateRequest struct {
	Text      *string         `json:"text"`
	Completed json.RawMessage `json:"completed"`
}

func (req updateRequest) input() UpdateInput {
	completed := bytes.Equal(bytes.TrimSpace(req.Completed), []byte("true"))
	return UpdateInput{Text: req.Text, Completed: &completed}
}

type listResponse struct {
	Resources []Todo `json:"resources"`
}

type itemResponse struct {
	Resource *Todo `json:"resource"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	todo, err := h.service.Create(r.Context(), owner(r), req.Text)
	if err != nil {
		h.fail(w, "create todo", err)
		return
	}
	httpx.JSON(w, http.StatusOK, todo)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), owner(r))
	if err != nil {
		h.fail(w, "list todos", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Resources: items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	todo, err := h.service.Get(r.Context(), owner(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get todo", err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemResponse{Resource: todo})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !docstore.ValidID(id) {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	todo, err := h.service.Update(r.Context(), owner(r), id, req.input())
	if err != nil {
		h.fail(w, "update todo", err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemResponse{Resource: todo})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	todo, err := h.service.Delete(r.Context(), owner(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "delete todo", err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemResponse{Resource: todo})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func owner(r *http.Request) string {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return ""
}
