package middleware

import (
	"net/http"
	"strings"

	"finitefield.org/gamified-web/internal/platform/httpx"
)

// writeError answers htmx and JSON callers with the httpx envelope and browsers with plain text.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	if IsHTMX(r.Context()) || strings.Contains(r.Header.Get("Accept"), "application/json") {
		httpx.WriteError(r.Context(), w, httpx.NewError(errorCode(code), msg, code))
		return
	}
	http.Error(w, msg, code)
}

func errorCode(status int) string {
	switch status {
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusBadRequest:
		return "bad_request"
	default:
		return "internal_server_error"
	}
}
