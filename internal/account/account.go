// Package account keeps a single demo account per visitor. Only the name and email
// are stored; there is no password check.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/platform/kv"
)

// StorageKey holds the signed-up user.
const StorageKey = "gamified-user-v1"

// ErrAccountNotFound is returned by Login when no matching user is stored.
var ErrAccountNotFound = errors.New("Account not found. Please sign up.")

// MissingFieldError reports a blank required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "Missing " + e.Field
}

// User is the stored account.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SignupInput is the sign-up form.
type SignupInput struct {
	Name     string `json:"name" form:"name" validate:"required"`
	Email    string `json:"email" form:"email" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

// LoginInput is the login form.
type LoginInput struct {
	Email string `json:"email" form:"email" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Service reads and writes the user in a visitor bucket.
type Service struct {
	bucket kv.Bucket
	logger *zap.Logger
}

// NewService binds an account service to bucket.
func NewService(bucket kv.Bucket, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{bucket: bucket, logger: logger}
}

// Signup stores the user with a trimmed name and a trimmed, lower-cased email.
func (s *Service) Signup(ctx context.Context, in SignupInput) (User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Password = strings.TrimSpace(in.Password)
	if err := check(in); err != nil {
		return User{}, err
	}

	user := User{Name: in.Name, Email: strings.ToLower(in.Email)}
	raw, err := json.Marshal(user)
	if err != nil {
		return User{}, fmt.Errorf("account: encode user: %w", err)
	}
	if err := s.bucket.Set(ctx, StorageKey, string(raw)); err != nil {
		s.logger.Warn("account: persist user failed", zap.Error(err))
	}
	return user, nil
}

// Login succeeds when the stored user's email matches.
func (s *Service) Login(ctx context.Context, in LoginInput) (User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := check(in); err != nil {
		return User{}, err
	}
	existing := s.Current(ctx)
	if existing == nil || existing.Email != strings.ToLower(in.Email) {
		return User{}, ErrAccountNotFound
	}
	return *existing, nil
}

// Logout forgets the stored user.
func (s *Service) Logout(ctx context.Context) {
	if err := s.bucket.Delete(ctx, StorageKey); err != nil {
		s.logger.Warn("account: delete user failed", zap.Error(err))
	}
}

// Current returns the stored user, or nil when there is none or it cannot be read.
func (s *Service) Current(ctx context.Context) *User {
	raw, err := s.bucket.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("account: read user failed", zap.Error(err))
		}
		return nil
	}
	var user *User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Debug("account: stored user is malformed", zap.Error(err))
		return nil
	}
	return user
}

// check returns the first missing field in declaration order.
func check(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &MissingFieldError{Field: fieldErrs[0].Field()}
	}
	return fmt.Errorf("account: validate: %w", err)
}
