// Package storefront runs each visitor's storefront: their cart, theme, account and
// trailer modal, driven by commands dispatched one at a time.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/account"
	"finitefield.org/gamified-web/internal/cart"
	"finitefield.org/gamified-web/internal/catalog"
	"finitefield.org/gamified-web/internal/money"
	"finitefield.org/gamified-web/internal/platform/kv"
	"finitefield.org/gamified-web/internal/theme"
	"finitefield.org/gamified-web/internal/trailer"
)

var (
	// ErrUnknownCommand is returned by Dispatch for command types it does not handle.
	ErrUnknownCommand = errors.New("storefront: unknown command")
	// ErrInvalidVisitor is returned when a session is requested without a visitor id.
	ErrInvalidVisitor = errors.New("storefront: visitor id is required")
)

// Session is one visitor's storefront. Commands run one at a time, so each
// mutate, notify and persist sequence completes before the next command starts.
type Session struct {
	mu sync.Mutex

	id       string
	catalog  *catalog.Catalog
	cart     *cart.Store
	theme    *theme.Store
	account  *account.Service
	modal    *trailer.Modal
	logger   *zap.Logger
	metrics  *metrics
	clock    func() time.Time
	lastSeen atomic.Int64 // unix nanoseconds

	pending []cart.Event
}

func newSession(ctx context.Context, id string, deps sessionDeps) *Session {
	bucket := kv.NewBucket(deps.storage, id)
	logger := deps.logger.With(zap.String("visitor_id", id))
	s := &Session{
		id:      id,
		catalog: deps.catalog,
		cart:    cart.NewStore(deps.catalog, bucket, cart.WithLogger(logger)),
		theme:   theme.NewStore(bucket, logger),
		account: account.NewService(bucket, logger),
		logger:  logger,
		metrics: deps.metrics,
		clock:   deps.clock,
	}
	s.touch()
	s.cart.Subscribe(func(ev cart.Event) {
		if ev.Op != cart.OpLoad {
			s.pending = append(s.pending, ev)
		}
	})
	s.cart.Load(ctx)
	return s
}

// ID is the visitor id.
func (s *Session) ID() string { return s.id }

func (s *Session) touch() {
	s.lastSeen.Store(s.clock().UnixNano())
}

// LastSeen reports when the session last handled a request.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Dispatch runs cmd. Validation failures from sign-up and login are returned;
// storage failures are logged and never abort a command.
func (s *Session) Dispatch(ctx context.Context, cmd Command) (Outcome, error) {
	if cmd == nil {
		return Outcome{}, ErrUnknownCommand
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.pending = s.pending[:0]

	out := Outcome{Command: cmd.Name()}
	var err error
	switch c := cmd.(type) {
	case AddToCart:
		s.logCartErr(c, s.cart.Add(ctx, c.ProductID))
		if _, ok := s.catalog.Lookup(c.ProductID); ok {
			out.Expanded = c.ProductID
		}
	case RemoveFromCart:
		s.logCartErr(c, s.cart.Remove(ctx, c.ProductID))
	case SetQuantity:
		s.logCartErr(c, s.cart.SetQuantity(ctx, c.ProductID, c.Qty))
	case IncrementQty:
		s.logCartErr(c, s.cart.Increment(ctx, c.ProductID))
	case DecrementQty:
		s.logCartErr(c, s.cart.Decrement(ctx, c.ProductID))
	case Checkout:
		notice := s.checkout(ctx)
		out.Notice = &notice
	case ToggleTheme:
		next, terr := s.theme.Toggle(ctx, c.Preferred)
		if terr != nil {
			s.logger.Warn("storefront: persist theme failed", zap.Error(terr))
		}
		out.Theme = next
	case OpenTrailer:
		s.openTrailer(c.ProductID)
	case CloseTrailer:
		if s.modal != nil {
			s.modal.Close()
		}
	case ClickBackdrop:
		if s.modal != nil {
			s.modal.Backdrop()
		}
	case PressKey:
		if s.modal != nil {
			s.modal.HandleKey(c.Key)
		}
	case Signup:
		var user account.User
		user, err = s.account.Signup(ctx, c.Input)
		if err == nil {
			out.User = &user
		}
	case Login:
		var user account.User
		user, err = s.account.Login(ctx, c.Input)
		if err == nil {
			out.User = &user
		}
	case Logout:
		s.account.Logout(ctx)
	default:
		return Outcome{}, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}

	for _, ev := range s.pending {
		s.metrics.cartMutation(ctx, ev.Op)
	}
	out.CartChanged = len(s.pending) > 0
	if s.modal != nil {
		out.TrailerOpen = s.modal.IsOpen()
		out.TrailerContent = s.modal.Content()
	}
	return out, err
}

// HandleCheckout builds the checkout notice for the current cart.
func (s *Session) HandleCheckout(ctx context.Context) Notice {
	out, _ := s.Dispatch(ctx, Checkout{})
	return *out.Notice
}

// AddToCart is a convenience for dispatching AddToCart.
func (s *Session) AddToCart(ctx context.Context, productID string) {
	_, _ = s.Dispatch(ctx, AddToCart{ProductID: productID})
}

func (s *Session) checkout(ctx context.Context) Notice {
	if s.cart.Count() == 0 {
		s.metrics.checkout(ctx, "empty")
		return Notice{Kind: NoticeEmptyCart}
	}
	lines := s.cart.Lines()
	summary := make([]string, len(lines))
	for i, line := range lines {
		summary[i] = fmt.Sprintf("%s × %d — %s", line.Title, line.Qty, money.FormatUSD(line.Total()))
	}
	s.metrics.checkout(ctx, "placed")
	s.logger.Info("storefront: checkout",
		zap.Int("lines", len(lines)),
		zap.Int("count", s.cart.Count()),
		zap.Float64("subtotal_usd", s.cart.Subtotal()),
	)
	return Notice{
		Kind:     NoticeOrder,
		Title:    "Thank you!",
		Lines:    summary,
		Subtotal: money.FormatUSD(s.cart.Subtotal()),
	}
}

func (s *Session) openTrailer(productID string) {
	product, ok := s.catalog.Lookup(productID)
	if !ok {
		return
	}
	if s.modal == nil {
		s.modal = &trailer.Modal{}
	}
	meta, _ := s.catalog.Meta(productID)
	s.modal.Open(trailer.Content(product.Title, meta.Trailer))
}

func (s *Session) logCartErr(cmd Command, err error) {
	if err == nil {
		return
	}
	s.logger.Warn("storefront: cart command not persisted", zap.String("command", cmd.Name()), zap.Error(err))
}

// View is a consistent read of the session used for rendering.
type View struct {
	VisitorID      string
	Lines          []cart.Line
	Count          int
	Subtotal       float64
	Theme          theme.Theme
	User           *account.User
	TrailerOpen    bool
	TrailerContent template.HTML
}

// View reads the session state. preferred is the client's colour scheme.
func (s *Session) View(ctx context.Context, preferred theme.Theme) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	v := View{
		VisitorID: s.id,
		Lines:     s.cart.Lines(),
		Count:     s.cart.Count(),
		Subtotal:  s.cart.Subtotal(),
		Theme:     s.theme.Resolve(ctx, preferred),
		User:      s.account.Current(ctx),
	}
	if s.modal != nil {
		v.TrailerOpen = s.modal.IsOpen()
		v.TrailerContent = s.modal.Content()
	}
	return v
}

// Catalog is the shared product catalog.
func (s *Session) Catalog() *catalog.Catalog { return s.catalog }
