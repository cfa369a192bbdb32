package view

import (
	"bytes"
	"html/template"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/catalog"
)

// NoDescriptionText is shown when a product has no description.
const NoDescriptionText = "No description available."

var descriptionPolicy = newDescriptionPolicy()

func newDescriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// DetailCache builds each product's detail panel the first time it is shown and
// reuses it afterwards. The catalog is immutable, so entries never go stale.
type DetailCache struct {
	catalog *catalog.Catalog
	tmpl    *template.Template
	md      goldmark.Markdown
	logger  *zap.Logger

	mu     sync.Mutex
	panels map[string]template.HTML
	builds int
}

func newDetailCache(cat *catalog.Catalog, tmpl *template.Template, logger *zap.Logger) *DetailCache {
	return &DetailCache{
		catalog: cat,
		tmpl:    tmpl,
		md:      goldmark.New(),
		logger:  logger,
		panels:  make(map[string]template.HTML),
	}
}

// Panel returns the detail panel for id, building it on first use.
func (c *DetailCache) Panel(id string) template.HTML {
	c.mu.Lock()
	defer c.mu.Unlock()
	if panel, ok := c.panels[id]; ok {
		return panel
	}
	panel := c.build(id)
	c.panels[id] = panel
	c.builds++
	return panel
}

// Builds reports how many panels have been built.
func (c *DetailCache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

func (c *DetailCache) build(id string) template.HTML {
	product, _ := c.catalog.Lookup(id)
	meta, _ := c.catalog.Meta(id)

	data := struct {
		Desc      template.HTML
		Genre     string
		Platforms []string
	}{
		Desc:      c.description(meta.Desc),
		Genre:     product.Genre,
		Platforms: meta.Platforms,
	}
	var buf bytes.Buffer
	if err := c.tmpl.ExecuteTemplate(&buf, "detail_panel", data); err != nil {
		c.logger.Warn("view: render detail panel failed", zap.String("product_id", id), zap.Error(err))
		return ""
	}
	return template.HTML(buf.String())
}

func (c *DetailCache) description(markdown string) template.HTML {
	if strings.TrimSpace(markdown) == "" {
		return template.HTML("<p>" + template.HTMLEscapeString(NoDescriptionText) + "</p>")
	}
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(markdown), &buf); err != nil {
		c.logger.Debug("view: markdown conversion failed", zap.Error(err))
		return template.HTML("<p>" + template.HTMLEscapeString(markdown) + "</p>")
	}
	return template.HTML(descriptionPolicy.SanitizeBytes(buf.Bytes()))
}
