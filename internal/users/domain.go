package users

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"github.com/odyssey-erp/todo-api/internal/shared"
)

// DefaultMinPasswordLength applies when no policy is configured.
const DefaultMinPasswordLength = 8

// maxPasswordLength is the bcrypt input limit.
const maxPasswordLength = 72

var validate = validator.New()

// User represents a registered account. Only ID and Email are serialised.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Tokens       []TokenEntry `json:"-"`
	CreatedAt    time.Time    `json:"-"`
	UpdatedAt    time.Time    `json:"-"`
}

// TokenEntry is one issued session token held by a user.
type TokenEntry struct {
	Access string
	Token  string
}

// HasToken reports whether the user still holds token under access.
func (u *User) HasToken(access, token string) bool {
	for _, t := range u.Tokens {
		if t.Access == access && t.Token == token {
			return true
		}
	}
	return false
}

// Credentials is a validated email/password pair.
type Credentials struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=72"`
}

// NormalizeEmail trims and case-folds an email address.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// NewCredentials validates raw input before anything is persisted.
func NewCredentials(email, password string, minPasswordLength int) (Credentials, error) {
	if minPasswordLength <= 0 {
		minPasswordLength = DefaultMinPasswordLength
	}
	creds := Credentials{Email: NormalizeEmail(email), Password: password}
	if err := validate.Struct(creds); err != nil {
		return Credentials{}, validationError(err)
	}
	if err := validatePassword(password, minPasswordLength); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

func validatePassword(password string, minLength int) error {
	rule := "required,min=" + strconv.Itoa(minLength) + ",max=" + strconv.Itoa(maxPasswordLength)
	// validator counts runes; bcrypt's limit is in bytes.
	if err := validate.Var(password, rule); err != nil || len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be between %d and %d characters", shared.ErrValidation, minLength, maxPasswordLength)
	}
	return nil
}

func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" is invalid")
	}
	return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(fields, ", "))
}
