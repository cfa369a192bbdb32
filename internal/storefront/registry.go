package storefront

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/catalog"
	"finitefield.org/gamified-web/internal/platform/kv"
)

// RegistryDeps wires the collaborators shared by every session.
type RegistryDeps struct {
	Catalog *catalog.Catalog
	Storage kv.Storage
	Logger  *zap.Logger
	Meter   metric.Meter
	Clock   func() time.Time
}

type sessionDeps struct {
	catalog *catalog.Catalog
	storage kv.Storage
	logger  *zap.Logger
	metrics *metrics
	clock   func() time.Time
}

// Registry holds the in-memory session of every active visitor. Sessions are
// created on first use and dropped by Sweep once idle; their state stays in storage.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	deps     sessionDeps
}

// NewRegistry validates deps and returns an empty registry.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Storage == nil {
		return nil, errors.New("storefront: storage is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cat := deps.Catalog
	if cat == nil {
		cat = catalog.Empty()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		sessions: make(map[string]*Session),
		deps: sessionDeps{
			catalog: cat,
			storage: deps.Storage,
			logger:  logger,
			metrics: newMetrics(deps.Meter, logger),
			clock:   clock,
		},
	}, nil
}

// Session returns the visitor's session, creating it and loading the persisted
// cart on first use. Every lookup counts as activity for Sweep.
func (r *Registry) Session(ctx context.Context, visitorID string) (*Session, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, ErrInvalidVisitor
	}
	if s := r.existing(visitorID); s != nil {
		return s, nil
	}

	// The cart load hits storage, so it runs without holding r.mu.
	fresh := newSession(ctx, visitorID, r.deps)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[visitorID]; ok {
		s.touch()
		return s, nil
	}
	r.sessions[visitorID] = fresh
	r.deps.metrics.sessionDelta(ctx, 1)
	return fresh, nil
}

func (r *Registry) existing(visitorID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[visitorID]
	if !ok {
		return nil
	}
	s.touch()
	return s
}

// Sweep drops sessions idle for longer than idle and returns how many it removed.
func (r *Registry) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := r.deps.clock().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	r.deps.metrics.sessionDelta(ctx, -int64(removed))
	if removed > 0 {
		r.deps.logger.Debug("storefront: swept idle sessions", zap.Int("removed", removed), zap.Int("remaining", len(r.sessions)))
	}
	return removed
}

// Len reports the number of sessions held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Catalog is the catalog shared by all sessions.
func (r *Registry) Catalog() *catalog.Catalog { return r.deps.catalog }
