// Package cart implements the visitor's shopping cart: an id → line mapping that
// persists itself to the visitor's key-value bucket after every mutation and migrates
// the two older storage formats on load.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/catalog"
	"finitefield.org/gamified-web/internal/platform/kv"
)

const (
	// StorageKey holds the current id → Line object map. Older deployments wrote an
	// id → quantity map under the same key.
	StorageKey = "gamified-cart-v1"
	// LegacyStorageKey holds the oldest id → quantity map. It is deleted once migrated.
	LegacyStorageKey = "gamified-cart"
)

// ErrPersist wraps failures writing the cart to storage. The in-memory cart is
// already updated when it is returned.
var ErrPersist = errors.New("cart: persist failed")

// Line is one product's entry in the cart. Title, price and image are cached from
// the catalog when the line is created.
type Line struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
	Qty   int     `json:"qty"`
}

// Total is the line's price times quantity, in USD.
func (l Line) Total() float64 {
	return float64(l.Qty) * l.Price
}

// ProductLookup resolves catalog products by id.
type ProductLookup interface {
	Lookup(id string) (catalog.Product, bool)
}

// Op names the operation behind an Event.
type Op string

const (
	OpAdd         Op = "add"
	OpRemove      Op = "remove"
	OpSetQuantity Op = "set_quantity"
	OpIncrement   Op = "increment"
	OpDecrement   Op = "decrement"
	OpLoad        Op = "load"
)

// Event describes a completed cart mutation.
type Event struct {
	Op        Op
	ProductID string
	Count     int
	Subtotal  float64
}

// Listener observes cart mutations. Listeners run synchronously before the cart is persisted.
type Listener func(Event)

// Option customises a Store.
type Option func(*Store)

// WithLogger sets the logger used for load and persistence diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store owns the cart state for a single visitor. It is not safe for concurrent
// use; the owning session serialises access.
type Store struct {
	products  ProductLookup
	bucket    kv.Bucket
	logger    *zap.Logger
	items     map[string]*Line
	listeners map[int]Listener
	nextID    int
}

// NewStore constructs an empty cart bound to products and bucket. Call Load to
// restore the persisted state.
func NewStore(products ProductLookup, bucket kv.Bucket, opts ...Option) *Store {
	s := &Store{
		products:  products,
		bucket:    bucket,
		logger:    zap.NewNop(),
		items:     make(map[string]*Line),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	if l == nil {
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() { delete(s.listeners, id) }
}

// Add puts one unit of productID in the cart, creating the line on first add.
// Unknown products are ignored.
func (s *Store) Add(ctx context.Context, productID string) error {
	product, ok := s.lookup(productID)
	if !ok {
		return nil
	}
	line, ok := s.items[productID]
	if !ok {
		line = &Line{
			ID:    product.ID,
			Title: product.Title,
			Price: product.Price,
			Image: product.Image,
		}
		s.items[productID] = line
	}
	line.Qty++
	return s.commit(ctx, OpAdd, productID)
}

// Remove deletes the line for productID when present.
func (s *Store) Remove(ctx context.Context, productID string) error {
	if _, ok := s.items[productID]; !ok {
		return nil
	}
	delete(s.items, productID)
	return s.commit(ctx, OpRemove, productID)
}

// SetQuantity assigns qty to an existing line, clamped to a minimum of 1.
func (s *Store) SetQuantity(ctx context.Context, productID string, qty int) error {
	line, ok := s.items[productID]
	if !ok {
		return nil
	}
	line.Qty = max(1, qty)
	return s.commit(ctx, OpSetQuantity, productID)
}

// Increment adds one unit to an existing line.
func (s *Store) Increment(ctx context.Context, productID string) error {
	line, ok := s.items[productID]
	if !ok {
		return nil
	}
	line.Qty++
	return s.commit(ctx, OpIncrement, productID)
}

// Decrement removes one unit from an existing line without going below 1.
func (s *Store) Decrement(ctx context.Context, productID string) error {
	line, ok := s.items[productID]
	if !ok {
		return nil
	}
	line.Qty = max(1, line.Qty-1)
	return s.commit(ctx, OpDecrement, productID)
}

// Count is the total number of units in the cart.
func (s *Store) Count() int {
	n := 0
	for _, line := range s.items {
		n += line.Qty
	}
	return n
}

// Subtotal is the sum of price × quantity over all lines, in USD.
func (s *Store) Subtotal() float64 {
	sum := 0.0
	for _, line := range s.items {
		sum += line.Total()
	}
	return sum
}

// Len reports the number of distinct lines.
func (s *Store) Len() int { return len(s.items) }

// Line returns the line for productID.
func (s *Store) Line(productID string) (Line, bool) {
	line, ok := s.items[productID]
	if !ok {
		return Line{}, false
	}
	return *line, true
}

// Lines returns the cart lines ordered by title, then id.
func (s *Store) Lines() []Line {
	out := make([]Line, 0, len(s.items))
	for _, line := range s.items {
		out = append(out, *line)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Snapshot returns a copy of the cart keyed by product id.
func (s *Store) Snapshot() map[string]Line {
	out := make(map[string]Line, len(s.items))
	for id, line := range s.items {
		out[id] = *line
	}
	return out
}

func (s *Store) lookup(productID string) (catalog.Product, bool) {
	if s.products == nil || productID == "" {
		return catalog.Product{}, false
	}
	return s.products.Lookup(productID)
}

func (s *Store) replace(lines map[string]Line) {
	s.items = make(map[string]*Line, len(lines))
	for id, line := range lines {
		line := line
		s.items[id] = &line
	}
}

func (s *Store) commit(ctx context.Context, op Op, productID string) error {
	s.notify(op, productID)
	return s.save(ctx)
}

func (s *Store) notify(op Op, productID string) {
	if len(s.listeners) == 0 {
		return
	}
	ev := Event{Op: op, ProductID: productID, Count: s.Count(), Subtotal: s.Subtotal()}
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s.listeners[id](ev)
	}
}

func (s *Store) save(ctx context.Context) error {
	raw, err := encodeLines(s.Snapshot())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := s.bucket.Set(ctx, StorageKey, raw); err != nil {
		s.logger.Warn("cart: persist failed", zap.String("namespace", s.bucket.Namespace()), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
