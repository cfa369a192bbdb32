package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/gamified-web/internal/platform/requestctx"
)

func newTestSessions() *Sessions {
	return NewSessions(SessionOptions{SigningKey: []byte("test-signing-key")})
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionIssuesVisitorCookie(t *testing.T) {
	sessions := newTestSessions()
	var visitor string
	handler := sessions.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		visitor = requestctx.VisitorID(r.Context())
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, visitor)
	cookie := cookieNamed(rec, SessionCookieName)
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)

	// A returning browser keeps its visitor id and gets no new cookie.
	var again string
	handler = sessions.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		again = requestctx.VisitorID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, visitor, again)
	require.Nil(t, cookieNamed(rec, SessionCookieName))
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	sessions := newTestSessions()
	other := NewSessions(SessionOptions{SigningKey: []byte("another-key")})

	var first string
	rec := httptest.NewRecorder()
	other.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestctx.VisitorID(r.Context())
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	forged := cookieNamed(rec, SessionCookieName)
	require.NotNil(t, forged)

	var got string
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(forged)
	rec = httptest.NewRecorder()
	sessions.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestctx.VisitorID(r.Context())
	})).ServeHTTP(rec, req)

	require.NotEmpty(t, got)
	require.NotEqual(t, first, got)
	require.NotNil(t, cookieNamed(rec, SessionCookieName))
}

func csrfStack(sessions *Sessions, next http.Handler) http.Handler {
	return sessions.Middleware(HTMX(CSRF(false)(next)))
}

// bootstrap performs a GET and returns the cookies and token a browser would hold.
func bootstrap(t *testing.T, sessions *Sessions) ([]*http.Cookie, string) {
	t.Helper()
	var token string
	rec := httptest.NewRecorder()
	csrfStack(sessions, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = CSRFToken(r)
		_, _ = w.Write([]byte("page"))
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, token)
	return rec.Result().Cookies(), token
}

func TestCSRFAcceptsHeaderOrFormField(t *testing.T) {
	sessions := newTestSessions()
	cookies, token := bootstrap(t, sessions)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/cart/items/hades", nil)
	req.Header.Set(CSRFHeader, token)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	csrfStack(sessions, ok).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	form := url.Values{CSRFFormField: {token}}
	req = httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	csrfStack(sessions, ok).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCSRFRejectsMissingToken(t *testing.T) {
	sessions := newTestSessions()
	cookies, _ := bootstrap(t, sessions)
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	req.Header.Set("HX-Request", "true")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	csrfStack(sessions, next).ServeHTTP(rec, req)

	require.False(t, called)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	require.Contains(t, rec.Body.String(), `"forbidden"`)
}

func TestCSRFIgnoresAuthorizationHeader(t *testing.T) {
	sessions := newTestSessions()
	cookies, _ := bootstrap(t, sessions)
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/api/store/cart/hades", nil)
	req.Header.Set("Authorization", "Bearer anything")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	csrfStack(sessions, next).ServeHTTP(rec, req)

	require.False(t, called)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTriggerAppendsEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	Trigger(rec, "cart-updated")
	Trigger(rec, "theme-changed")
	require.Equal(t, "cart-updated, theme-changed", rec.Header().Get(HeaderTrigger))
}

func TestRedirectUsesHXRedirectForHTMX(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req = req.WithContext(WithHTMX(req.Context(), true))
	rec := httptest.NewRecorder()
	Redirect(rec, req, "/")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "/", rec.Header().Get("HX-Redirect"))

	req = httptest.NewRequest(http.MethodPost, "/login", nil)
	rec = httptest.NewRecorder()
	Redirect(rec, req, "/")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
}
