package view

import (
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"finitefield.org/gamified-web/internal/account"
	"finitefield.org/gamified-web/internal/cart"
	"finitefield.org/gamified-web/internal/catalog"
	"finitefield.org/gamified-web/internal/filter"
	"finitefield.org/gamified-web/internal/money"
	"finitefield.org/gamified-web/internal/theme"
)

// PageData is the model for every full page.
type PageData struct {
	Title     string
	Path      string
	CSRFToken string
	Theme     theme.Theme
	User      *account.User
	Cart      CartView
	Notice    *NoticeView
	Trailer   TrailerView
	Filter    FilterView
	Grid      GridView
	Product   *CardView
	Form      FormView
}

// CardView is one catalog card.
type CardView struct {
	ID         string
	Title      string
	Genre      string
	GenreLabel string
	Price      string
	PriceUSD   string
	Image      string
	BuyURL     string
	Visible    bool
	Expanded   bool
	Detail     template.HTML
	CSRFToken  string
}

// GridView is the catalog grid.
type GridView struct {
	Cards        []CardView
	VisibleCount int
}

// LineView is one rendered cart line.
type LineView struct {
	ID        string
	Title     string
	Image     string
	UnitPrice string
	Qty       int
	CSRFToken string
}

// CartView carries the cart list, badge count and subtotal.
type CartView struct {
	Lines     []LineView
	Count     int
	Subtotal  string
	CSRFToken string
	// OOB marks the list for an htmx out-of-band swap.
	OOB bool
}

// FilterView is the filter bar.
type FilterView struct {
	Search    string
	Max       string
	MaxLabel  string
	SliderMax string
	Genres    []GenreOption
	CartCount int
}

// GenreOption is a genre checkbox.
type GenreOption struct {
	Name    string
	Checked bool
}

// NoticeView is a blocking notice.
type NoticeView struct {
	Kind     string
	Title    string
	Message  string
	Lines    []string
	Subtotal string
}

// TrailerView is the trailer modal.
type TrailerView struct {
	Open      bool
	Content   template.HTML
	CSRFToken string
}

// FormView backs the sign-up and login forms.
type FormView struct {
	Mode  string
	Error string
	Name  string
	Email string
}

// BuyURL is the buy-now link for a product id.
func BuyURL(id string) string {
	return "/buy?id=" + url.QueryEscape(id)
}

// Card builds the card for p. The detail panel is attached only when expanded.
func (r *Renderer) Card(p catalog.Product, visible, expanded bool, csrf string) CardView {
	card := CardView{
		ID:         p.ID,
		Title:      p.Title,
		Genre:      p.Genre,
		GenreLabel: strings.ToUpper(p.Genre),
		Price:      money.FormatUSD(p.Price),
		PriceUSD:   strconv.FormatFloat(p.Price, 'f', -1, 64),
		Image:      p.Image,
		BuyURL:     BuyURL(p.ID),
		Visible:    visible,
		Expanded:   expanded,
		CSRFToken:  csrf,
	}
	if expanded {
		card.Detail = r.details.Panel(p.ID)
	}
	return card
}

// Grid renders every product with its filter visibility. expanded names the card
// whose detail panel is open, if any.
func (r *Renderer) Grid(state filter.State, expanded, csrf string) GridView {
	cards := filter.Apply(state, r.catalog.Products())
	grid := GridView{Cards: make([]CardView, len(cards)), VisibleCount: filter.VisibleCount(cards)}
	for i, c := range cards {
		grid.Cards[i] = r.Card(c.Product, c.Visible, c.Product.ID == expanded, csrf)
	}
	return grid
}

// Filters builds the filter bar for state.
func (r *Renderer) Filters(state filter.State, cartCount int) FilterView {
	genres := r.catalog.Genres()
	opts := make([]GenreOption, len(genres))
	for i, g := range genres {
		opts[i] = GenreOption{Name: g, Checked: state.HasGenre(g)}
	}
	return FilterView{
		Search:    state.Search,
		Max:       strconv.FormatFloat(state.MaxPrice, 'f', -1, 64),
		MaxLabel:  money.Format(state.MaxPrice),
		SliderMax: strconv.FormatFloat(filter.SliderMax, 'f', -1, 64),
		Genres:    opts,
		CartCount: cartCount,
	}
}

// Cart builds the cart list from lines, rebuilding every row on each call.
func Cart(lines []cart.Line, count int, subtotalUSD float64, csrf string) CartView {
	view := CartView{
		Lines:     make([]LineView, len(lines)),
		Count:     count,
		Subtotal:  money.FormatUSD(subtotalUSD),
		CSRFToken: csrf,
	}
	for i, line := range lines {
		view.Lines[i] = LineView{
			ID:        line.ID,
			Title:     line.Title,
			Image:     line.Image,
			UnitPrice: money.FormatUSD(line.Price),
			Qty:       line.Qty,
			CSRFToken: csrf,
		}
	}
	return view
}
