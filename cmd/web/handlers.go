package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/account"
	"finitefield.org/gamified-web/internal/filter"
	mw "finitefield.org/gamified-web/internal/middleware"
	"finitefield.org/gamified-web/internal/platform/httpx"
	"finitefield.org/gamified-web/internal/platform/requestctx"
	"finitefield.org/gamified-web/internal/storefront"
	"finitefield.org/gamified-web/internal/theme"
	"finitefield.org/gamified-web/internal/view"
)

const (
	modeSignup = "signup"
	modeLogin  = "login"

	eventCartUpdated  = "cart-updated"
	eventThemeChanged = "theme-changed"

	// openParam names the card whose detail panel is shown on a full page load.
	openParam = "open"
)

type fragment struct {
	name string
	data any
}

func (a *app) session(w http.ResponseWriter, r *http.Request) (*storefront.Session, bool) {
	s, err := a.registry.Session(r.Context(), requestctx.VisitorID(r.Context()))
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, "session_unavailable", err)
		return nil, false
	}
	return s, true
}

func (a *app) fail(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	requestctx.Logger(r.Context()).Error("request failed", zap.String("code", code), zap.Error(err))
	httpx.WriteError(r.Context(), w, httpx.NewError(code, http.StatusText(status), status))
}

// page builds the layout model shared by every full page.
func (a *app) page(r *http.Request, s *storefront.Session, title string) view.PageData {
	csrf := mw.CSRFToken(r)
	v := s.View(r.Context(), theme.Preference(r.Header))
	return view.PageData{
		Title:     title,
		Path:      r.URL.Path,
		CSRFToken: csrf,
		Theme:     v.Theme,
		User:      v.User,
		Cart:      view.Cart(v.Lines, v.Count, v.Subtotal, csrf),
		Trailer:   view.TrailerView{Open: v.TrailerOpen, Content: v.TrailerContent, CSRFToken: csrf},
	}
}

func (a *app) catalogPage(r *http.Request, s *storefront.Session, state filter.State, expanded string) view.PageData {
	data := a.page(r, s, "Store")
	data.Filter = a.renderer.Filters(state, data.Cart.Count)
	data.Grid = a.renderer.Grid(state, expanded, data.CSRFToken)
	return data
}

func (a *app) renderPage(w http.ResponseWriter, r *http.Request, name string, status int, data view.PageData) {
	var buf bytes.Buffer
	if err := a.renderer.Page(&buf, name, data); err != nil {
		a.fail(w, r, http.StatusInternalServerError, "render_failed", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (a *app) renderFragments(w http.ResponseWriter, r *http.Request, parts ...fragment) {
	var buf bytes.Buffer
	for _, part := range parts {
		if err := a.renderer.Fragment(&buf, part.name, part.data); err != nil {
			a.fail(w, r, http.StatusInternalServerError, "render_failed", err)
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func homeURL(state filter.State) string {
	if q := state.Values().Encode(); q != "" {
		return "/?" + q
	}
	return "/"
}

// GET /
func (a *app) handleHome(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	state := filter.Parse(r.URL.Query())
	a.renderPage(w, r, view.PageHome, http.StatusOK, a.catalogPage(r, s, state, r.URL.Query().Get(openParam)))
}

// GET /catalog/cards
func (a *app) handleCards(w http.ResponseWriter, r *http.Request) {
	state := filter.Parse(r.URL.Query())
	if !mw.IsHTMX(r.Context()) {
		http.Redirect(w, r, homeURL(state), http.StatusFound)
		return
	}
	mw.PushURL(w, homeURL(state))
	a.renderFragments(w, r, fragment{view.FragmentGrid, a.renderer.Grid(state, "", mw.CSRFToken(r))})
}

// POST /cart/items/{id}
func (a *app) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	out, err := s.Dispatch(r.Context(), storefront.AddToCart{ProductID: id})
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, "dispatch_failed", err)
		return
	}

	if !mw.IsHTMX(r.Context()) {
		if out.Expanded == "" {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/?"+url.Values{openParam: {out.Expanded}}.Encode(), http.StatusSeeOther)
		return
	}
	product, found := s.Catalog().Lookup(out.Expanded)
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	data := a.page(r, s, "")
	list := data.Cart
	list.OOB = true
	mw.Trigger(w, eventCartUpdated)
	a.renderFragments(w, r,
		fragment{view.FragmentCard, a.renderer.Card(product, true, true, data.CSRFToken)},
		fragment{view.FragmentCart, list},
		fragment{view.FragmentCounts, data.Cart},
	)
}

// handleCartLine serves the inc, dec and remove buttons of a cart row.
func (a *app) handleCartLine(command func(id string) storefront.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := a.session(w, r)
		if !ok {
			return
		}
		a.applyCartLine(w, r, s, command(chi.URLParam(r, "id")))
	}
}

// POST /cart/items/{id}/qty
func (a *app) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	raw := strings.TrimSpace(r.PostFormValue("qty"))
	qty, err := strconv.Atoi(raw)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_quantity", "qty must be a whole number", http.StatusBadRequest).
			WithDetails(map[string]any{"product_id": id, "qty": raw}))
		return
	}
	a.applyCartLine(w, r, s, storefront.SetQuantity{ProductID: id, Qty: qty})
}

func (a *app) applyCartLine(w http.ResponseWriter, r *http.Request, s *storefront.Session, cmd storefront.Command) {
	out, err := s.Dispatch(r.Context(), cmd)
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, "dispatch_failed", err)
		return
	}
	if !mw.IsHTMX(r.Context()) {
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}
	if out.CartChanged {
		mw.Trigger(w, eventCartUpdated)
	}
	data := a.page(r, s, "")
	a.renderFragments(w, r,
		fragment{view.FragmentCart, data.Cart},
		fragment{view.FragmentCounts, data.Cart},
	)
}

// GET /cart
func (a *app) handleCartPage(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.renderPage(w, r, view.PageCart, http.StatusOK, a.page(r, s, "Cart"))
}

// GET /cart/list
func (a *app) handleCartList(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.renderFragments(w, r, fragment{view.FragmentCart, a.page(r, s, "").Cart})
}

// POST /checkout
func (a *app) handleCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	notice := noticeView(s.HandleCheckout(r.Context()))
	if mw.IsHTMX(r.Context()) {
		a.renderFragments(w, r, fragment{view.FragmentNotice, notice})
		return
	}
	data := a.page(r, s, "Cart")
	data.Notice = &notice
	a.renderPage(w, r, view.PageCart, http.StatusOK, data)
}

func noticeView(n storefront.Notice) view.NoticeView {
	nv := view.NoticeView{
		Kind:     string(n.Kind),
		Title:    n.Title,
		Lines:    n.Lines,
		Subtotal: n.Subtotal,
	}
	if n.Kind == storefront.NoticeEmptyCart {
		nv.Message = storefront.EmptyCartMessage
	}
	return nv
}

// GET /buy?id=
func (a *app) handleBuy(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	data := a.page(r, s, "Buy")
	product, found := s.Catalog().Lookup(r.URL.Query().Get("id"))
	if !found {
		a.renderPage(w, r, view.PageBuy, http.StatusNotFound, data)
		return
	}
	card := a.renderer.Card(product, true, false, data.CSRFToken)
	data.Title = product.Title
	data.Product = &card
	a.renderPage(w, r, view.PageBuy, http.StatusOK, data)
}

// GET /trailer/{id}
func (a *app) handleOpenTrailer(w http.ResponseWriter, r *http.Request) {
	a.trailerCommand(w, r, storefront.OpenTrailer{ProductID: chi.URLParam(r, "id")})
}

// POST /trailer/close
func (a *app) handleCloseTrailer(w http.ResponseWriter, r *http.Request) {
	var cmd storefront.Command = storefront.CloseTrailer{}
	if r.PostFormValue("source") == "backdrop" {
		cmd = storefront.ClickBackdrop{}
	}
	a.trailerCommand(w, r, cmd)
}

// POST /trailer/key
func (a *app) handleTrailerKey(w http.ResponseWriter, r *http.Request) {
	a.trailerCommand(w, r, storefront.PressKey{Key: r.PostFormValue("key")})
}

func (a *app) trailerCommand(w http.ResponseWriter, r *http.Request, cmd storefront.Command) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	out, err := s.Dispatch(r.Context(), cmd)
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, "dispatch_failed", err)
		return
	}
	if mw.IsHTMX(r.Context()) {
		a.renderFragments(w, r, fragment{view.FragmentTrailer, view.TrailerView{
			Open:      out.TrailerOpen,
			Content:   out.TrailerContent,
			CSRFToken: mw.CSRFToken(r),
		}})
		return
	}
	if r.Method != http.MethodGet {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	a.renderPage(w, r, view.PageHome, http.StatusOK, a.catalogPage(r, s, filter.Default(), ""))
}

// POST /theme/toggle
func (a *app) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	out, err := s.Dispatch(r.Context(), storefront.ToggleTheme{Preferred: theme.Preference(r.Header)})
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, "dispatch_failed", err)
		return
	}
	if !mw.IsHTMX(r.Context()) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := mw.TriggerDetail(w, eventThemeChanged, map[string]string{"theme": string(out.Theme)}); err != nil {
		requestctx.Logger(r.Context()).Warn("theme: encode trigger failed", zap.Error(err))
	}
	a.renderFragments(w, r, fragment{view.FragmentTheme, view.PageData{CSRFToken: mw.CSRFToken(r), Theme: out.Theme}})
}

// GET /signup, GET /login
func (a *app) handleAccountForm(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := a.session(w, r)
		if !ok {
			return
		}
		data := a.page(r, s, accountTitle(mode))
		data.Form = view.FormView{Mode: mode}
		a.renderPage(w, r, view.PageAccount, http.StatusOK, data)
	}
}

func accountTitle(mode string) string {
	if mode == modeSignup {
		return "Sign Up"
	}
	return "Login"
}

// POST /signup
func (a *app) handleSignup(w http.ResponseWriter, r *http.Request) {
	in := account.SignupInput{
		Name:     r.PostFormValue("name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	a.accountCommand(w, r, storefront.Signup{Input: in}, view.FormView{Mode: modeSignup, Name: in.Name, Email: in.Email})
}

// POST /login
func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	in := account.LoginInput{Email: r.PostFormValue("email")}
	a.accountCommand(w, r, storefront.Login{Input: in}, view.FormView{Mode: modeLogin, Email: in.Email})
}

// POST /logout
func (a *app) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.accountCommand(w, r, storefront.Logout{}, view.FormView{})
}

func (a *app) accountCommand(w http.ResponseWriter, r *http.Request, cmd storefront.Command, form view.FormView) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	_, err := s.Dispatch(r.Context(), cmd)
	var missing *account.MissingFieldError
	switch {
	case err == nil:
	case errors.As(err, &missing), errors.Is(err, account.ErrAccountNotFound):
		data := a.page(r, s, accountTitle(form.Mode))
		form.Error = err.Error()
		data.Form = form
		a.renderPage(w, r, view.PageAccount, http.StatusUnprocessableEntity, data)
		return
	default:
		a.fail(w, r, http.StatusInternalServerError, "dispatch_failed", err)
		return
	}

	if sd := mw.SessionFromContext(r.Context()); sd != nil {
		sd.RotateCSRF()
	}
	mw.Redirect(w, r, "/")
}

// GET /api/store
func (a *app) handleStoreAPI(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.Store().Payload())
}

// POST /api/store/cart/{id}
func (a *app) handleStoreAPIAdd(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, found := s.Catalog().Lookup(id); !found {
		httpx.WriteError(r.Context(), w, httpx.NewError("product_not_found", "unknown product "+id, http.StatusNotFound))
		return
	}
	store := s.Store()
	store.AddToCart(r.Context(), id)
	httpx.WriteJSON(w, http.StatusOK, store.Payload())
}
