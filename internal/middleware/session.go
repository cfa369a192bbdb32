package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/platform/requestctx"
)

// SessionCookieName names the signed visitor cookie.
const SessionCookieName = "GAMIFIED_SESSION"

const defaultSessionTTL = 30 * 24 * time.Hour

// SessionData is the signed cookie payload binding a browser to a visitor.
type SessionData struct {
	VisitorID string    `json:"vid"`
	CSRFToken string    `json:"csrf,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	dirty bool
	now   func() time.Time
}

// MarkDirty flags the session for rewriting before the response is sent.
func (s *SessionData) MarkDirty() {
	s.dirty = true
	s.UpdatedAt = s.now().UTC()
}

// RotateCSRF issues a fresh CSRF token, used after sign-in state changes.
func (s *SessionData) RotateCSRF() {
	s.CSRFToken = newCSRFToken()
	s.MarkDirty()
}

// SessionOptions configures the Sessions middleware.
type SessionOptions struct {
	SigningKey []byte
	Secure     bool
	TTL        time.Duration
	Logger     *zap.Logger
	Now        func() time.Time
}

// Sessions issues and verifies visitor cookies.
type Sessions struct {
	key    []byte
	secure bool
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewSessions prepares the cookie codec. Without a signing key a random
// process-local key is generated, which invalidates cookies on restart.
func NewSessions(opts SessionOptions) *Sessions {
	s := &Sessions{
		key:    opts.SigningKey,
		secure: opts.Secure,
		ttl:    opts.TTL,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ttl <= 0 {
		s.ttl = defaultSessionTTL
	}
	if len(s.key) == 0 {
		s.key = make([]byte, 32)
		if _, err := rand.Read(s.key); err != nil {
			s.logger.Warn("session: failed to generate signing key", zap.Error(err))
			s.key = []byte("insecure-dev-key-set-GAMIFIED_SESSION_SIGNING_KEY")
		}
		s.logger.Info("session: using ephemeral signing key")
	}
	return s
}

// Middleware loads or creates the visitor session and records the visitor id on
// the request context.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sd, fromCookie := s.read(r)
		if sd.VisitorID == "" {
			now := s.now().UTC()
			sd = &SessionData{
				VisitorID: ulid.Make().String(),
				CSRFToken: newCSRFToken(),
				CreatedAt: now,
				UpdatedAt: now,
				dirty:     true,
				now:       s.now,
			}
		}

		ctx := withSession(r.Context(), sd)
		ctx = requestctx.WithVisitorID(ctx, sd.VisitorID)

		rw := NewResponseRecorder(w)
		rw.SetBeforeWrite(func(w http.ResponseWriter) {
			if sd.dirty || !fromCookie {
				s.write(w, sd)
			}
		})
		next.ServeHTTP(rw, r.WithContext(ctx))
		if !rw.Wrote() && (sd.dirty || !fromCookie) {
			s.write(w, sd)
		}
	})
}

func (s *Sessions) read(r *http.Request) (*SessionData, bool) {
	empty := &SessionData{now: s.now}
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return empty, false
	}
	payloadPart, sigPart, ok := strings.Cut(c.Value, ".")
	if !ok {
		return empty, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return empty, false
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return empty, false
	}
	if !hmac.Equal(sig, s.sign(payload)) {
		s.logger.Debug("session: signature mismatch")
		return empty, false
	}
	var sd SessionData
	if err := json.Unmarshal(payload, &sd); err != nil || strings.TrimSpace(sd.VisitorID) == "" {
		return empty, false
	}
	sd.now = s.now
	return &sd, true
}

func (s *Sessions) write(w http.ResponseWriter, sd *SessionData) {
	b, err := json.Marshal(sd)
	if err != nil {
		s.logger.Warn("session: encode cookie failed", zap.Error(err))
		return
	}
	value := base64.RawURLEncoding.EncodeToString(b) + "." + base64.RawURLEncoding.EncodeToString(s.sign(b))
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  s.now().Add(s.ttl),
	})
	sd.dirty = false
}

func (s *Sessions) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil)
}

func newCSRFToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
