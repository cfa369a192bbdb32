package cart

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"finitefield.org/gamified-web/internal/platform/kv"
)

func TestLoadMigratesLegacyCart(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t)
	if err := mem.Set(ctx, visitor, LegacyStorageKey, `{"hades":3,"ghost":2}`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store.Load(ctx)

	if store.Len() != 1 {
		t.Fatalf("expected exactly one line, got %+v", store.Snapshot())
	}
	line, ok := store.Line("hades")
	if !ok || line.Qty != 3 || line.Title != "Hades" || line.Price != 10 {
		t.Fatalf("unexpected migrated line %+v", line)
	}
	if _, err := mem.Get(ctx, visitor, LegacyStorageKey); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected legacy key to be deleted, got %v", err)
	}
	if got := persisted(t, mem); len(got) != 1 || got["hades"].Qty != 3 {
		t.Fatalf("expected migrated cart under current key, got %+v", got)
	}
}

func TestLoadMigratesIntermediateFormat(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t)
	if err := mem.Set(ctx, visitor, StorageKey, `{"doom":2,"celeste":0,"ghost":4,"hades":"5"}`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store.Load(ctx)

	snap := store.Snapshot()
	if len(snap) != 2 || snap["doom"].Qty != 2 || snap["hades"].Qty != 5 {
		t.Fatalf("unexpected migrated cart %+v", snap)
	}
	if got := persisted(t, mem); got["doom"].Title != "Doom" {
		t.Fatalf("expected migrated objects persisted, got %+v", got)
	}
}

func TestLoadAcceptsCurrentFormat(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t)
	raw := `{"doom":{"id":"doom","title":"Doom (cached)","price":45,"image":"d.jpg","qty":2},"bad":{"qty":0},"worse":"x"}`
	if err := mem.Set(ctx, visitor, StorageKey, raw); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := mem.Set(ctx, visitor, LegacyStorageKey, `{"hades":1}`); err != nil {
		t.Fatalf("seed legacy: %v", err)
	}

	store.Load(ctx)

	snap := store.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected malformed lines to be skipped, got %+v", snap)
	}
	if line := snap["doom"]; line.Title != "Doom (cached)" || line.Price != 45 || line.Qty != 2 {
		t.Fatalf("expected cached fields kept verbatim, got %+v", line)
	}
	if _, err := mem.Get(ctx, visitor, LegacyStorageKey); err != nil {
		t.Fatalf("legacy key must be left alone when the current key exists: %v", err)
	}
}

func TestLoadTwiceIsStable(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t)
	if err := mem.Set(ctx, visitor, LegacyStorageKey, `{"hades":1,"doom":2}`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store.Load(ctx)
	first := store.Snapshot()
	store.Load(ctx)
	second := store.Snapshot()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical state, got %+v then %+v", first, second)
	}
	if second["doom"].Qty != 2 {
		t.Fatalf("expected no double migration, got %+v", second)
	}
}

func TestLoadParseFailureKeepsPriorState(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t)
	_ = store.Add(ctx, "celeste")
	if err := mem.Set(ctx, visitor, StorageKey, `{not json`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store.Load(ctx)

	if store.Len() != 1 || store.Count() != 1 {
		t.Fatalf("expected prior state, got %+v", store.Snapshot())
	}
}

func TestLoadWithoutDataStartsEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	store.Load(context.Background())
	if store.Len() != 0 || store.Count() != 0 || store.Subtotal() != 0 {
		t.Fatalf("expected empty cart, got %+v", store.Snapshot())
	}
}

func TestLoadNullValueIsEmpty(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t)
	if err := mem.Set(ctx, visitor, StorageKey, "null"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store.Load(ctx)
	if store.Len() != 0 {
		t.Fatalf("expected empty cart, got %+v", store.Snapshot())
	}
}

func TestQuantityOf(t *testing.T) {
	cases := map[string]int{
		`3`:       3,
		` 2 `:     2,
		`2.9`:     2,
		`"4"`:     4,
		`0`:       0,
		`-1`:      0,
		`"abc"`:   0,
		`{}`:      0,
		`null`:    0,
		`true`:    0,
		`"NaN"`:   0,
		`1e40`:    maxQty,
		`"-Inf"`:  0,
		`""`:      0,
		`[1]`:     0,
		`0.5`:     0,
		`"  7  "`: 7,
	}
	for raw, want := range cases {
		if got := quantityOf([]byte(raw)); got != want {
			t.Errorf("quantityOf(%s) = %d, want %d", raw, got, want)
		}
	}
}
