package storefront

import (
	"context"

	"finitefield.org/gamified-web/internal/cart"
	"finitefield.org/gamified-web/internal/catalog"
	"finitefield.org/gamified-web/internal/money"
)

// Facade is the narrow surface other pages use: the cart, the products, a product
// lookup, an add-to-cart call and the currency helpers.
type Facade struct {
	session *Session
}

// Store returns the session's facade.
func (s *Session) Store() Facade { return Facade{session: s} }

// Cart returns a copy of the cart keyed by product id.
func (f Facade) Cart() map[string]cart.Line {
	f.session.mu.Lock()
	defer f.session.mu.Unlock()
	return f.session.cart.Snapshot()
}

// Products lists the catalog in order.
func (f Facade) Products() []catalog.Product { return f.session.catalog.Products() }

// ProductByID returns the id → product mapping.
func (f Facade) ProductByID() map[string]catalog.Product { return f.session.catalog.ByID() }

// AddToCart adds one unit of productID.
func (f Facade) AddToCart(ctx context.Context, productID string) { f.session.AddToCart(ctx, productID) }

// ToDisplay converts a USD amount to the display currency.
func (Facade) ToDisplay(usd float64) float64 { return money.ToDisplay(usd) }

// Format renders a display-currency amount.
func (Facade) Format(amount float64) string { return money.Format(amount) }

// FacadePayload is the JSON form of the facade.
type FacadePayload struct {
	Cart            map[string]cart.Line       `json:"cart"`
	Count           int                        `json:"count"`
	Subtotal        float64                    `json:"subtotal"`
	SubtotalDisplay string                     `json:"subtotalDisplay"`
	Products        []catalog.Product          `json:"products"`
	ProductByID     map[string]catalog.Product `json:"productById"`
	USDToINR        float64                    `json:"usdToInr"`
}

// Payload snapshots the facade for the JSON API.
func (f Facade) Payload() FacadePayload {
	f.session.mu.Lock()
	lines := f.session.cart.Snapshot()
	count := f.session.cart.Count()
	subtotal := f.session.cart.Subtotal()
	f.session.mu.Unlock()

	return FacadePayload{
		Cart:            lines,
		Count:           count,
		Subtotal:        subtotal,
		SubtotalDisplay: money.FormatUSD(subtotal),
		Products:        f.Products(),
		ProductByID:     f.ProductByID(),
		USDToINR:        money.USDToINR,
	}
}
