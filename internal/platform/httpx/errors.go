// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/todo-api/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Store and unexpected failures collapse into a generic 400 so driver
// details never reach the client.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication Error")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusBadRequest, "Bad Request", "Invalid Login Credentials")
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusBadRequest, "Duplicate", "email already registered")
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusBadRequest, "Bad Request", "request could not be completed")
	}
}
