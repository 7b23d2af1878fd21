package todos

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/todo-api/internal/shared"
)

var validate = validator.New()

// Todo is an owner-scoped task.
type Todo struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Completed   bool      `json:"completed"`
	CompletedAt *int64    `json:"completedAt,omitempty"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"-"`
}

type textRule struct {
	Text string `validate:"required,max=1000"`
}

// NewTodo validates text and builds an unsaved Todo for owner.
func NewTodo(owner, text string, now time.Time) (*Todo, error) {
	cleaned, err := cleanText(text)
	if err != nil {
		return nil, err
	}
	return &Todo{Text: cleaned, Owner: owner, CreatedAt: now.UTC()}, nil
}

func cleanText(text string) (string, error) {
	cleaned := strings.TrimSpace(text)
	if err := validate.Struct(textRule{Text: cleaned}); err != nil {
		return "", fmt.Errorf("%w: text must be between 1 and 1000 characters", shared.ErrValidation)
	}
	return cleaned, nil
}

// UpdateInput is the client-settable subset of a Todo.
type UpdateInput struct {
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
}

// Patch is the fully resolved change applied by a repository. CompletedAt
// is computed by the service, never taken from the client.
type Patch struct {
	Text        *string
	Completed   bool
	CompletedAt *int64
}

// resolvePatch turns client input into a Patch. completed=true stamps now;
// anything else clears completion.
func resolvePatch(in UpdateInput, now time.Time) (Patch, error) {
	var patch Patch
	if in.Text != nil {
		cleaned, err := cleanText(*in.Text)
		if err != nil {
			return Patch{}, err
		}
		patch.Text = &cleaned
	}
	if in.Completed != nil && *in.Completed {
		stamp := now.UnixMilli()
		patch.Completed = true
		patch.CompletedAt = &stamp
	}
	return patch, nil
}
