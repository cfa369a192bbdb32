package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Response headers understood by htmx.
const (
	HeaderTrigger  = "HX-Trigger"
	HeaderPushURL  = "HX-Push-Url"
	HeaderReswap   = "HX-Reswap"
	HeaderRetarget = "HX-Retarget"
)

// HTMX marks requests coming from htmx so handlers can answer with fragments.
func HTMX(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is := r.Header.Get("HX-Request") == "true"
		next.ServeHTTP(w, r.WithContext(WithHTMX(r.Context(), is)))
	})
}

// Trigger appends client-side events to the HX-Trigger header.
func Trigger(w http.ResponseWriter, events ...string) {
	if len(events) == 0 {
		return
	}
	existing := w.Header().Get(HeaderTrigger)
	all := events
	if existing != "" {
		all = append([]string{existing}, events...)
	}
	w.Header().Set(HeaderTrigger, strings.Join(all, ", "))
}

// PushURL asks htmx to update the browser location.
func PushURL(w http.ResponseWriter, url string) {
	w.Header().Set(HeaderPushURL, url)
}

// TriggerDetail sets HX-Trigger to a single event carrying detail.
func TriggerDetail(w http.ResponseWriter, event string, detail any) error {
	b, err := json.Marshal(map[string]any{event: detail})
	if err != nil {
		return err
	}
	w.Header().Set(HeaderTrigger, string(b))
	return nil
}

// Redirect sends a browser to url, using HX-Redirect for htmx requests.
func Redirect(w http.ResponseWriter, r *http.Request, url string) {
	if IsHTMX(r.Context()) {
		w.Header().Set("HX-Redirect", url)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}
