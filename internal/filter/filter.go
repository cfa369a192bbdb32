// Package filter decides which catalog cards are visible for a search term, a
// maximum display price and a set of genres.
package filter

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"finitefield.org/gamified-web/internal/catalog"
	"finitefield.org/gamified-web/internal/money"
)

const (
	// DefaultMaxPrice is the slider's initial position, in display currency.
	DefaultMaxPrice = 3000.0
	// SliderMax is the largest value the price slider offers.
	SliderMax = 6000.0
)

// Query parameter names read by Parse.
const (
	ParamSearch = "q"
	ParamMax    = "max"
	ParamGenre  = "genre"
)

// State is the filter input. It is derived from each request and never stored.
type State struct {
	Search   string
	MaxPrice float64
	Genres   map[string]struct{}
}

// Default returns the state of an untouched filter bar.
func Default() State {
	return State{MaxPrice: DefaultMaxPrice}
}

// Parse reads the filter state from query values. A missing or non-numeric max
// falls back to DefaultMaxPrice. Numbers are clamped to [0, SliderMax], so a
// slider dragged fully left keeps only free games.
func Parse(values url.Values) State {
	state := Default()
	state.Search = values.Get(ParamSearch)
	if raw := strings.TrimSpace(values.Get(ParamMax)); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(v) {
			state.MaxPrice = max(0, min(v, SliderMax))
		}
	}
	for _, g := range values[ParamGenre] {
		if g == "" {
			continue
		}
		if state.Genres == nil {
			state.Genres = make(map[string]struct{})
		}
		state.Genres[g] = struct{}{}
	}
	return state
}

// Values encodes the state back into query values.
func (s State) Values() url.Values {
	v := url.Values{}
	if s.Search != "" {
		v.Set(ParamSearch, s.Search)
	}
	v.Set(ParamMax, strconv.FormatFloat(s.MaxPrice, 'f', -1, 64))
	for _, g := range s.GenreList() {
		v.Add(ParamGenre, g)
	}
	return v
}

// HasGenre reports whether genre is selected.
func (s State) HasGenre(genre string) bool {
	_, ok := s.Genres[genre]
	return ok
}

// GenreList returns the selected genres sorted.
func (s State) GenreList() []string {
	out := make([]string, 0, len(s.Genres))
	for g := range s.Genres {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// MatchesSearch reports whether title contains the search term, ignoring case.
func (s State) MatchesSearch(title string) bool {
	return strings.Contains(strings.ToLower(title), strings.ToLower(s.Search))
}

// MatchesPrice reports whether the USD price, converted for display, is within MaxPrice.
func (s State) MatchesPrice(priceUSD float64) bool {
	return money.ToDisplay(priceUSD) <= s.MaxPrice
}

// MatchesGenre reports whether genre passes the genre filter. An empty selection
// matches every genre.
func (s State) MatchesGenre(genre string) bool {
	return len(s.Genres) == 0 || s.HasGenre(genre)
}

// Visible is the conjunction of the three predicates.
func (s State) Visible(p catalog.Product) bool {
	return s.MatchesSearch(p.Title) && s.MatchesPrice(p.Price) && s.MatchesGenre(p.Genre)
}

// Card pairs a product with its computed visibility.
type Card struct {
	Product catalog.Product
	Visible bool
}

// Apply computes visibility for every product, preserving order.
func Apply(s State, products []catalog.Product) []Card {
	cards := make([]Card, len(products))
	for i, p := range products {
		cards[i] = Card{Product: p, Visible: s.Visible(p)}
	}
	return cards
}

// VisibleCount counts the visible cards.
func VisibleCount(cards []Card) int {
	n := 0
	for _, c := range cards {
		if c.Visible {
			n++
		}
	}
	return n
}
