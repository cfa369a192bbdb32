// Package trailer resolves product trailers into embeddable players and tracks the
// open/closed state of the trailer modal.
package trailer

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// NoTrailerText is shown when a product has no trailer.
const NoTrailerText = "No trailer available for this game."

const embedBase = "https://www.youtube.com/embed/"

// EmbedURL turns youtube.com watch links and youtu.be short links into embed
// URLs. Any other input, including unparsable input, is returned unchanged.
func EmbedURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	host := u.Hostname()
	if strings.Contains(host, "youtube.com") {
		if id := u.Query().Get("v"); id != "" {
			return embed(id)
		}
	}
	if host == "youtu.be" {
		if id := strings.Replace(u.Path, "/", "", 1); id != "" {
			return embed(id)
		}
	}
	return raw
}

func embed(id string) string {
	return embedBase + id + "?autoplay=1&rel=0"
}

var contentPolicy = newContentPolicy()

func newContentPolicy() *bluemonday.Policy {
	policy := bluemonday.NewPolicy()
	policy.AllowStandardURLs()
	policy.AllowElements("div", "p")
	policy.AllowAttrs("class").OnElements("div", "p")
	policy.AllowAttrs("src", "title", "frameborder", "allow", "allowfullscreen").OnElements("iframe")
	return policy
}

var contentTemplate = template.Must(template.New("trailer").Parse(
	`{{if .Src}}<iframe src="{{.Src}}" title="{{.Title}} trailer" frameborder="0" allow="autoplay; encrypted-media; picture-in-picture" allowfullscreen></iframe>` +
		`{{else}}<div class="no-trailer"><p>{{.Placeholder}}</p></div>{{end}}`,
))

// Content renders the modal body for a product: an embedded player when trailerURL
// is set, otherwise the no-trailer placeholder.
func Content(title, trailerURL string) template.HTML {
	data := struct {
		Src         string
		Title       string
		Placeholder string
	}{Title: title, Placeholder: NoTrailerText}
	if trailerURL = strings.TrimSpace(trailerURL); trailerURL != "" {
		data.Src = EmbedURL(trailerURL)
	}
	var buf bytes.Buffer
	if err := contentTemplate.Execute(&buf, data); err != nil {
		return template.HTML(contentPolicy.Sanitize(`<div class="no-trailer"><p>` + NoTrailerText + `</p></div>`))
	}
	return template.HTML(contentPolicy.Sanitize(buf.String()))
}

// State is the modal's visibility.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Modal is a single visitor's trailer dialog. The zero value is a closed modal.
type Modal struct {
	mu      sync.Mutex
	state   State
	content template.HTML
	opens   int
}

// Open shows content and locks page scrolling.
func (m *Modal) Open(content template.HTML) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Open
	m.content = content
	m.opens++
}

// Close hides the modal and clears its content. Closing a closed modal does nothing.
func (m *Modal) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Closed
	m.content = ""
}

// Backdrop handles a click on the backdrop.
func (m *Modal) Backdrop() { m.Close() }

// HandleKey closes the modal on Escape while it is open and reports whether it did.
func (m *Modal) HandleKey(key string) bool {
	if key != "Escape" && key != "Esc" {
		return false
	}
	m.mu.Lock()
	open := m.state == Open
	m.mu.Unlock()
	if !open {
		return false
	}
	m.Close()
	return true
}

// State reports the current state.
func (m *Modal) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsOpen reports whether the modal is visible.
func (m *Modal) IsOpen() bool { return m.State() == Open }

// ScrollLocked reports whether page scrolling is suspended, which is exactly while
// the modal is open.
func (m *Modal) ScrollLocked() bool { return m.IsOpen() }

// Content returns what the modal currently shows.
func (m *Modal) Content() template.HTML {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content
}

// Opens counts how many times the modal has been opened.
func (m *Modal) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}
