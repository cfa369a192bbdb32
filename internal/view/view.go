// Package view renders storefront pages and HTMX fragments from embedded
// html/template files.
package view

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/catalog"
)

//go:embed templates/*.tmpl templates/pages/*.tmpl
var templateFS embed.FS

//go:embed assets
var assetFS embed.FS

// Page names accepted by Renderer.Page.
const (
	PageHome    = "home"
	PageCart    = "cart"
	PageBuy     = "buy"
	PageAccount = "account"
)

// Fragment names accepted by Renderer.Fragment.
const (
	FragmentCard    = "card"
	FragmentGrid    = "card_grid"
	FragmentCart    = "cart_list"
	FragmentBadge   = "cart_badge"
	FragmentCounts  = "cart_counts_oob"
	FragmentNotice  = "notice"
	FragmentTrailer = "trailer_modal"
	FragmentTheme   = "theme_toggle"
)

// ErrUnknownPage is returned by Page for names without a template.
var ErrUnknownPage = errors.New("view: unknown page")

// Option customises a Renderer.
type Option func(*Renderer)

// WithLogger sets the renderer logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Renderer renders pages and fragments for one catalog.
type Renderer struct {
	catalog  *catalog.Catalog
	partials *template.Template
	pages    map[string]*template.Template
	details  *DetailCache
	logger   *zap.Logger
}

// New parses the embedded templates.
func New(cat *catalog.Catalog, opts ...Option) (*Renderer, error) {
	if cat == nil {
		cat = catalog.Empty()
	}
	r := &Renderer{catalog: cat, logger: zap.NewNop(), pages: make(map[string]*template.Template)}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	partials, err := template.New("_root").Funcs(funcMap()).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("view: parse partials: %w", err)
	}
	pageFiles, err := fs.Glob(templateFS, "templates/pages/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("view: list pages: %w", err)
	}
	for _, file := range pageFiles {
		clone, err := partials.Clone()
		if err != nil {
			return nil, fmt.Errorf("view: clone partials: %w", err)
		}
		page, err := clone.ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("view: parse %s: %w", file, err)
		}
		r.pages[strings.TrimSuffix(path.Base(file), ".tmpl")] = page
	}

	r.partials = partials
	r.details = newDetailCache(cat, partials, r.logger)
	return r, nil
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"now": time.Now,
	}
}

// Page executes the base layout with the named page's content.
func (r *Renderer) Page(w io.Writer, name string, data PageData) error {
	page, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPage, name)
	}
	if err := page.ExecuteTemplate(w, "base", data); err != nil {
		return fmt.Errorf("view: render page %s: %w", name, err)
	}
	return nil
}

// Fragment executes a single partial.
func (r *Renderer) Fragment(w io.Writer, name string, data any) error {
	if err := r.partials.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("view: render fragment %s: %w", name, err)
	}
	return nil
}

// Assets is the static asset tree served under /assets/.
func Assets() fs.FS {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// Details exposes the detail panel cache.
func (r *Renderer) Details() *DetailCache { return r.details }

// Catalog is the catalog the renderer draws from.
func (r *Renderer) Catalog() *catalog.Catalog { return r.catalog }
