package filter

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/gamified-web/internal/catalog"
)

func genres(names ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func TestParseDefaults(t *testing.T) {
	state := Parse(url.Values{})
	require.Equal(t, "", state.Search)
	require.Equal(t, DefaultMaxPrice, state.MaxPrice)
	require.Empty(t, state.Genres)
}

func TestParseReadsQuery(t *testing.T) {
	state := Parse(url.Values{
		"q":     {"Doom"},
		"max":   {"4500"},
		"genre": {"rpg", "fps", ""},
	})
	require.Equal(t, "Doom", state.Search)
	require.Equal(t, 4500.0, state.MaxPrice)
	require.Equal(t, []string{"fps", "rpg"}, state.GenreList())
}

func TestParseMaxFallbacks(t *testing.T) {
	for _, raw := range []string{"abc", " ", "NaN"} {
		require.Equal(t, DefaultMaxPrice, Parse(url.Values{"max": {raw}}).MaxPrice, raw)
	}
	require.Equal(t, SliderMax, Parse(url.Values{"max": {"99999"}}).MaxPrice)
	require.Equal(t, 0.0, Parse(url.Values{"max": {"-10"}}).MaxPrice)
}

func TestParseZeroMaxHidesPaidGames(t *testing.T) {
	state := Parse(url.Values{"max": {"0"}})
	require.Equal(t, 0.0, state.MaxPrice)
	require.False(t, state.Visible(catalog.Product{Title: "Hades", Price: 20}))
	require.True(t, state.Visible(catalog.Product{Title: "Freebie", Price: 0}))
	require.Equal(t, "0", state.Values().Get(ParamMax))
}

func TestValuesRoundTrip(t *testing.T) {
	state := State{Search: "elden", MaxPrice: 1200, Genres: genres("rpg", "action")}
	require.Equal(t, state, Parse(state.Values()))
}

func TestSearchPredicateAlone(t *testing.T) {
	state := State{Search: "ELD", MaxPrice: SliderMax}
	require.True(t, state.Visible(catalog.Product{Title: "Elden Ring", Genre: "rpg", Price: 10}))
	require.False(t, state.Visible(catalog.Product{Title: "Hades", Genre: "rpg", Price: 10}))
	require.True(t, Default().MatchesSearch("anything"))
}

func TestPricePredicateAlone(t *testing.T) {
	state := State{MaxPrice: 4150}
	// 50 USD displays as 4150 INR, which is still within the limit.
	require.True(t, state.Visible(catalog.Product{Title: "Doom", Price: 50}))
	require.False(t, state.Visible(catalog.Product{Title: "Doom", Price: 50.01}))
}

func TestGenrePredicateAlone(t *testing.T) {
	state := State{MaxPrice: SliderMax, Genres: genres("rpg")}
	require.True(t, state.Visible(catalog.Product{Title: "Hades", Genre: "rpg"}))
	require.False(t, state.Visible(catalog.Product{Title: "Doom", Genre: "fps"}))
	require.False(t, state.Visible(catalog.Product{Title: "Hades", Genre: "RPG"}))
}

func TestFiltersCombineAsConjunction(t *testing.T) {
	products := []catalog.Product{
		{ID: "1", Title: "Ember Quest", Genre: "rpg", Price: 10},
		{ID: "2", Title: "Steel Storm", Genre: "fps", Price: 50},
		{ID: "3", Title: "Crown Saga", Genre: "rpg", Price: 90},
	}
	state := State{Search: "steel", MaxPrice: 5000, Genres: genres("rpg")}

	// Each predicate alone.
	require.Equal(t, []bool{false, true, false}, visibility(Apply(State{Search: "steel", MaxPrice: SliderMax}, products)))
	require.Equal(t, []bool{true, true, false}, visibility(Apply(State{MaxPrice: 5000}, products)))
	require.Equal(t, []bool{true, false, true}, visibility(Apply(State{MaxPrice: SliderMax * 2, Genres: genres("rpg")}, products)))

	cards := Apply(state, products)
	require.Equal(t, []bool{false, false, false}, visibility(cards))
	require.Zero(t, VisibleCount(cards))
}

func TestApplyIsIdempotentAndKeepsOrder(t *testing.T) {
	products := []catalog.Product{
		{ID: "a", Title: "Alpha", Genre: "rpg", Price: 5},
		{ID: "b", Title: "Beta", Genre: "fps", Price: 500},
	}
	first := Apply(Default(), products)
	second := Apply(Default(), products)
	require.Equal(t, first, second)
	require.Equal(t, "a", first[0].Product.ID)
	require.Equal(t, 1, VisibleCount(first))
}

func visibility(cards []Card) []bool {
	out := make([]bool, len(cards))
	for i, c := range cards {
		out[i] = c.Visible
	}
	return out
}
