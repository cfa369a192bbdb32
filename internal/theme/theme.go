// Package theme persists the visitor's light/dark colour scheme.
package theme

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/platform/kv"
)

// StorageKey holds the persisted theme.
const StorageKey = "gamified-theme"

// PreferenceHeader is the client hint carrying the browser's colour scheme.
const PreferenceHeader = "Sec-CH-Prefers-Color-Scheme"

// ErrInvalidTheme is returned by Set for values other than light and dark.
var ErrInvalidTheme = errors.New("theme: must be light or dark")

// Theme is a colour scheme.
type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// Parse accepts exactly "light" or "dark".
func Parse(raw string) (Theme, bool) {
	switch Theme(raw) {
	case Light, Dark:
		return Theme(raw), true
	}
	return "", false
}

// Preference reads the client's preferred scheme from the request headers,
// defaulting to dark.
func Preference(h http.Header) Theme {
	v := strings.Trim(strings.TrimSpace(h.Get(PreferenceHeader)), `"`)
	if strings.EqualFold(v, string(Light)) {
		return Light
	}
	return Dark
}

// Next is the opposite scheme.
func (t Theme) Next() Theme {
	if t == Light {
		return Dark
	}
	return Light
}

// Label is the toggle button's accessible label.
func (t Theme) Label() string {
	if t == Light {
		return "Switch to dark mode"
	}
	return "Switch to light mode"
}

// Icon is the glyph shown on the toggle button.
func (t Theme) Icon() string {
	if t == Light {
		return "🌙"
	}
	return "☀️"
}

// Store reads and writes the theme in a visitor bucket.
type Store struct {
	bucket kv.Bucket
	logger *zap.Logger
}

// NewStore binds a theme store to bucket.
func NewStore(bucket kv.Bucket, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{bucket: bucket, logger: logger}
}

// Current returns the stored theme, or preferred when nothing valid is stored.
func (s *Store) Current(ctx context.Context, preferred Theme) Theme {
	raw, err := s.bucket.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("theme: read failed", zap.Error(err))
		}
		return fallback(preferred)
	}
	if t, ok := Parse(raw); ok {
		return t
	}
	return fallback(preferred)
}

// Resolve returns the current theme and stores it when nothing valid is stored
// yet, so later visits keep the scheme the first one resolved.
func (s *Store) Resolve(ctx context.Context, preferred Theme) Theme {
	raw, err := s.bucket.Get(ctx, StorageKey)
	if err == nil {
		if t, ok := Parse(raw); ok {
			return t
		}
	} else if !errors.Is(err, kv.ErrNotFound) {
		s.logger.Warn("theme: read failed", zap.Error(err))
		return fallback(preferred)
	}
	t := fallback(preferred)
	if err := s.Set(ctx, t); err != nil {
		s.logger.Warn("theme: persist resolved theme failed", zap.Error(err))
	}
	return t
}

// Set persists t.
func (s *Store) Set(ctx context.Context, t Theme) error {
	if _, ok := Parse(string(t)); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, t)
	}
	if err := s.bucket.Set(ctx, StorageKey, string(t)); err != nil {
		return fmt.Errorf("theme: persist: %w", err)
	}
	return nil
}

// Toggle flips the current theme, persists it and returns it.
func (s *Store) Toggle(ctx context.Context, preferred Theme) (Theme, error) {
	next := s.Current(ctx, preferred).Next()
	if err := s.Set(ctx, next); err != nil {
		return next, err
	}
	return next, nil
}

func fallback(preferred Theme) Theme {
	if t, ok := Parse(string(preferred)); ok {
		return t
	}
	return Dark
}
