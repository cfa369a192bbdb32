package storefront

import (
	"html/template"
	"strings"

	"finitefield.org/gamified-web/internal/account"
	"finitefield.org/gamified-web/internal/theme"
)

// Command is a visitor action dispatched to a Session.
type Command interface {
	Name() string
}

type (
	// AddToCart adds one unit of a product and expands its detail panel.
	AddToCart struct{ ProductID string }
	// RemoveFromCart deletes a cart line.
	RemoveFromCart struct{ ProductID string }
	// SetQuantity assigns a line quantity, clamped to at least 1.
	SetQuantity struct {
		ProductID string
		Qty       int
	}
	// IncrementQty adds one unit to a line.
	IncrementQty struct{ ProductID string }
	// DecrementQty removes one unit from a line, never below 1.
	DecrementQty struct{ ProductID string }
	// Checkout produces the order notice.
	Checkout struct{}
	// ToggleTheme flips light and dark. Preferred is the client's scheme, used when
	// nothing is stored yet.
	ToggleTheme struct{ Preferred theme.Theme }
	// OpenTrailer shows a product's trailer in the modal.
	OpenTrailer struct{ ProductID string }
	// CloseTrailer closes the modal from its close button.
	CloseTrailer struct{}
	// ClickBackdrop closes the modal from its backdrop.
	ClickBackdrop struct{}
	// PressKey forwards a key press to the modal.
	PressKey struct{ Key string }
	// Signup stores a demo account.
	Signup struct{ Input account.SignupInput }
	// Login checks the stored account.
	Login struct{ Input account.LoginInput }
	// Logout forgets the stored account.
	Logout struct{}
)

func (AddToCart) Name() string      { return "add_to_cart" }
func (RemoveFromCart) Name() string { return "remove_from_cart" }
func (SetQuantity) Name() string    { return "set_quantity" }
func (IncrementQty) Name() string   { return "increment_qty" }
func (DecrementQty) Name() string   { return "decrement_qty" }
func (Checkout) Name() string       { return "checkout" }
func (ToggleTheme) Name() string    { return "toggle_theme" }
func (OpenTrailer) Name() string    { return "open_trailer" }
func (CloseTrailer) Name() string   { return "close_trailer" }
func (ClickBackdrop) Name() string  { return "click_backdrop" }
func (PressKey) Name() string       { return "press_key" }
func (Signup) Name() string         { return "signup" }
func (Login) Name() string          { return "login" }
func (Logout) Name() string         { return "logout" }

// Outcome reports what a command changed so the caller can pick fragments to render.
type Outcome struct {
	Command     string
	CartChanged bool
	// Expanded is the product whose detail panel should be shown.
	Expanded string
	Notice   *Notice
	Theme    theme.Theme
	User     *account.User
	// TrailerOpen and TrailerContent describe the modal after the command.
	TrailerOpen    bool
	TrailerContent template.HTML
}

// NoticeKind classifies a blocking notice.
type NoticeKind string

const (
	NoticeEmptyCart NoticeKind = "empty_cart"
	NoticeOrder     NoticeKind = "order"
)

// EmptyCartMessage is shown when checking out with nothing in the cart.
const EmptyCartMessage = "Your cart is empty. Add a game to continue."

// Notice is a blocking message for the visitor.
type Notice struct {
	Kind     NoticeKind
	Title    string
	Lines    []string
	Subtotal string
}

// Text renders the notice as plain text.
func (n Notice) Text() string {
	if n.Kind == NoticeEmptyCart {
		return EmptyCartMessage
	}
	var b strings.Builder
	b.WriteString(n.Title)
	b.WriteString("\n\nOrder summary:\n- ")
	b.WriteString(strings.Join(n.Lines, "\n- "))
	b.WriteString("\n\nSubtotal: ")
	b.WriteString(n.Subtotal)
	return b.String()
}
