package cart

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"finitefield.org/gamified-web/internal/catalog"
	"finitefield.org/gamified-web/internal/platform/kv"
)

const visitor = "visitor-1"

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Record{
		{ID: "hades", Title: "Hades", Genre: "rpg", PriceUSD: 10, Image: "hades.jpg"},
		{ID: "doom", Title: "Doom", Genre: "fps", PriceUSD: 50, Image: "doom.jpg"},
		{ID: "celeste", Title: "Celeste", Genre: "platformer", PriceUSD: 19.99, Image: "celeste.jpg"},
	})
}

func newTestStore(t *testing.T) (*Store, *kv.MemoryStore) {
	t.Helper()
	mem := kv.NewMemoryStore()
	return NewStore(testCatalog(), kv.NewBucket(mem, visitor)), mem
}

func persisted(t *testing.T, mem *kv.MemoryStore) map[string]Line {
	t.Helper()
	raw, err := mem.Get(context.Background(), visitor, StorageKey)
	if err != nil {
		t.Fatalf("read persisted cart: %v", err)
	}
	var lines map[string]Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		t.Fatalf("decode persisted cart: %v", err)
	}
	return lines
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAddTwiceMakesOneLine(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t)

	for i := 0; i < 2; i++ {
		if err := store.Add(ctx, "hades"); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	if store.Len() != 1 {
		t.Fatalf("expected one line, got %d", store.Len())
	}
	line, ok := store.Line("hades")
	if !ok || line.Qty != 2 {
		t.Fatalf("expected qty 2, got %+v", line)
	}
	if line.Title != "Hades" || line.Price != 10 || line.Image != "hades.jpg" {
		t.Fatalf("expected cached catalog fields, got %+v", line)
	}
	if store.Count() != 2 {
		t.Fatalf("expected count 2, got %d", store.Count())
	}
	if got := persisted(t, mem)["hades"].Qty; got != 2 {
		t.Fatalf("expected persisted qty 2, got %d", got)
	}
}

func TestAddUnknownProductIsNoop(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t)
	notified := 0
	store.Subscribe(func(Event) { notified++ })

	if err := store.Add(ctx, "missing"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if store.Len() != 0 || notified != 0 {
		t.Fatalf("expected no change, got len=%d notified=%d", store.Len(), notified)
	}
	if _, err := mem.Get(ctx, visitor, StorageKey); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected nothing persisted, got %v", err)
	}
}

func TestCountAndSubtotalTrackOperations(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	steps := []func() error{
		func() error { return store.Add(ctx, "hades") },
		func() error { return store.Add(ctx, "doom") },
		func() error { return store.Increment(ctx, "doom") },
		func() error { return store.Add(ctx, "celeste") },
		func() error { return store.SetQuantity(ctx, "celeste", 4) },
		func() error { return store.Decrement(ctx, "celeste") },
		func() error { return store.Remove(ctx, "hades") },
		func() error { return store.Increment(ctx, "hades") },
		func() error { return store.Add(ctx, "hades") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}

		wantCount := 0
		wantSubtotal := 0.0
		for _, line := range store.Snapshot() {
			wantCount += line.Qty
			wantSubtotal += float64(line.Qty) * line.Price
		}
		if store.Count() != wantCount {
			t.Fatalf("step %d: count %d, want %d", i, store.Count(), wantCount)
		}
		if !almostEqual(store.Subtotal(), wantSubtotal) {
			t.Fatalf("step %d: subtotal %f, want %f", i, store.Subtotal(), wantSubtotal)
		}
	}

	if store.Count() != 1+2+3 {
		t.Fatalf("expected final count 6, got %d", store.Count())
	}
	if !almostEqual(store.Subtotal(), 10+2*50+3*19.99) {
		t.Fatalf("unexpected final subtotal %f", store.Subtotal())
	}
}

func TestRemoveTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Add(ctx, "hades")
	_ = store.Add(ctx, "doom")

	var events []Event
	store.Subscribe(func(ev Event) { events = append(events, ev) })

	if err := store.Remove(ctx, "hades"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	after := store.Snapshot()
	if err := store.Remove(ctx, "hades"); err != nil {
		t.Fatalf("second remove: %v", err)
	}

	if len(store.Snapshot()) != len(after) || store.Len() != 1 {
		t.Fatalf("expected cart unchanged on second remove, got %+v", store.Snapshot())
	}
	if len(events) != 1 || events[0].Op != OpRemove {
		t.Fatalf("expected a single remove event, got %+v", events)
	}
}

func TestQuantityFloor(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Add(ctx, "doom")

	for i := 0; i < 3; i++ {
		_ = store.Decrement(ctx, "doom")
	}
	if line, _ := store.Line("doom"); line.Qty != 1 {
		t.Fatalf("expected decrement to stop at 1, got %d", line.Qty)
	}

	for _, qty := range []int{0, -5} {
		_ = store.SetQuantity(ctx, "doom", qty)
		if line, _ := store.Line("doom"); line.Qty != 1 {
			t.Fatalf("expected setQuantity(%d) to clamp to 1, got %d", qty, line.Qty)
		}
	}
	if store.Len() != 1 {
		t.Fatalf("decrementing must not remove the line")
	}
}

func TestQuantityOpsOnMissingLineAreNoops(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.SetQuantity(ctx, "hades", 3)
	_ = store.Increment(ctx, "hades")
	_ = store.Decrement(ctx, "hades")
	if store.Len() != 0 {
		t.Fatalf("expected empty cart, got %+v", store.Snapshot())
	}
}

func TestSubscribersSeeStateBeforePersist(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t)

	var got Event
	unsubscribe := store.Subscribe(func(ev Event) {
		got = ev
		if _, err := mem.Get(ctx, visitor, StorageKey); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("expected listener to run before the first persist")
		}
	})
	_ = store.Add(ctx, "doom")

	if got.Op != OpAdd || got.ProductID != "doom" || got.Count != 1 || got.Subtotal != 50 {
		t.Fatalf("unexpected event %+v", got)
	}

	unsubscribe()
	got = Event{}
	_ = store.Add(ctx, "doom")
	if got.Op != "" {
		t.Fatalf("expected no event after unsubscribe, got %+v", got)
	}
}

func TestLinesOrderedByTitle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Add(ctx, "hades")
	_ = store.Add(ctx, "celeste")
	_ = store.Add(ctx, "doom")

	lines := store.Lines()
	want := []string{"celeste", "doom", "hades"}
	for i, id := range want {
		if lines[i].ID != id {
			t.Fatalf("line %d: got %s, want %s", i, lines[i].ID, id)
		}
	}
}

type failingStorage struct{ kv.Storage }

func (failingStorage) Set(context.Context, string, string, string) error {
	return errors.New("disk full")
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testCatalog(), kv.NewBucket(failingStorage{kv.NewMemoryStore()}, visitor))

	err := store.Add(ctx, "hades")
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if store.Count() != 1 {
		t.Fatalf("expected in-memory add to stick, got count %d", store.Count())
	}
}
