package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/platform/kv"
)

// ErrMalformed reports a persisted cart value that is not a JSON object.
var ErrMalformed = errors.New("cart: malformed persisted cart")

// Load restores the cart from storage, migrating the intermediate and legacy
// quantity-map formats into Line objects. Read and parse failures are logged and
// leave the current state untouched. Calling Load again after a migration reads the
// migrated value back, so repeated loads yield the same state.
func (s *Store) Load(ctx context.Context) {
	lines, err := s.load(ctx)
	if err != nil {
		s.logger.Warn("cart: load failed, keeping previous state",
			zap.String("namespace", s.bucket.Namespace()),
			zap.Error(err),
		)
		return
	}
	if lines == nil {
		return
	}
	s.replace(lines)
	s.notify(OpLoad, "")
}

func (s *Store) load(ctx context.Context) (map[string]Line, error) {
	raw, err := s.read(ctx, StorageKey)
	if err != nil {
		return nil, err
	}
	if raw != "" {
		values, err := decodeObject(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StorageKey, err)
		}
		if !hasBareNumber(values) {
			return s.acceptCurrent(values), nil
		}
		lines := s.migrate(values)
		if err := s.persist(ctx, lines); err != nil {
			s.logger.Warn("cart: persist migrated cart failed", zap.Error(err))
		}
		s.logger.Info("cart: migrated quantity map", zap.String("key", StorageKey), zap.Int("lines", len(lines)))
		return lines, nil
	}

	legacy, err := s.read(ctx, LegacyStorageKey)
	if err != nil {
		return nil, err
	}
	if legacy == "" {
		return nil, nil
	}
	values, err := decodeObject(legacy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", LegacyStorageKey, err)
	}
	lines := s.migrate(values)
	if err := s.persist(ctx, lines); err != nil {
		s.logger.Warn("cart: persist migrated cart failed", zap.Error(err))
	}
	if err := s.bucket.Delete(ctx, LegacyStorageKey); err != nil {
		s.logger.Warn("cart: delete legacy cart failed", zap.Error(err))
	}
	s.logger.Info("cart: migrated legacy cart", zap.String("key", LegacyStorageKey), zap.Int("lines", len(lines)))
	return lines, nil
}

func (s *Store) read(ctx context.Context, key string) (string, error) {
	raw, err := s.bucket.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return raw, nil
}

func (s *Store) persist(ctx context.Context, lines map[string]Line) error {
	raw, err := encodeLines(lines)
	if err != nil {
		return err
	}
	return s.bucket.Set(ctx, StorageKey, raw)
}

// acceptCurrent keeps well-formed Line objects and skips anything else.
func (s *Store) acceptCurrent(values map[string]json.RawMessage) map[string]Line {
	lines := make(map[string]Line, len(values))
	skipped := 0
	for id, value := range values {
		var line Line
		if err := json.Unmarshal(value, &line); err != nil || line.Qty < 1 {
			skipped++
			continue
		}
		if line.ID == "" {
			line.ID = id
		}
		lines[id] = line
	}
	if skipped > 0 {
		s.logger.Debug("cart: skipped malformed lines", zap.Int("skipped", skipped))
	}
	return lines
}

// migrate turns an id → quantity map into Lines, dropping unknown products and
// non-positive quantities.
func (s *Store) migrate(values map[string]json.RawMessage) map[string]Line {
	lines := make(map[string]Line, len(values))
	for id, value := range values {
		qty := quantityOf(value)
		if qty <= 0 {
			continue
		}
		product, ok := s.lookup(id)
		if !ok {
			continue
		}
		lines[id] = Line{
			ID:    product.ID,
			Title: product.Title,
			Price: product.Price,
			Image: product.Image,
			Qty:   qty,
		}
	}
	return lines
}

func decodeObject(raw string) (map[string]json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "null" {
		return map[string]json.RawMessage{}, nil
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if values == nil {
		values = map[string]json.RawMessage{}
	}
	return values, nil
}

func hasBareNumber(values map[string]json.RawMessage) bool {
	for _, v := range values {
		if isNumber(v) {
			return true
		}
	}
	return false
}

func isNumber(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return false
	}
	c := v[0]
	return c == '-' || (c >= '0' && c <= '9')
}

// quantityOf reads a JSON number or numeric string as a whole quantity. Anything
// else counts as zero.
func quantityOf(v json.RawMessage) int {
	v = bytes.TrimSpace(v)
	var text string
	switch {
	case isNumber(v):
		text = string(v)
	case len(v) > 0 && v[0] == '"':
		if err := json.Unmarshal(v, &text); err != nil {
			return 0
		}
		text = strings.TrimSpace(text)
	default:
		return 0
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || !(f >= 1) {
		return 0
	}
	if f > float64(maxQty) {
		return maxQty
	}
	return int(f)
}

const maxQty = 1 << 30

func encodeLines(lines map[string]Line) (string, error) {
	if lines == nil {
		lines = map[string]Line{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("encode cart: %w", err)
	}
	return string(raw), nil
}
