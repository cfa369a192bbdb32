// Package catalog holds the immutable product list the storefront sells and the
// providers that load it from a YAML data file or, as a fallback, from rendered markup.
package catalog

import (
	"strings"
)

// Product is a purchasable catalog entry. Price is in USD, the base currency.
type Product struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Genre string  `json:"genre"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// Meta carries optional presentation data attached to a product.
type Meta struct {
	Trailer   string   `json:"trailer,omitempty"`
	Desc      string   `json:"desc,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
}

// Record is the shape of one entry in the catalog data source.
type Record struct {
	ID        string   `yaml:"id" json:"id"`
	Title     string   `yaml:"title" json:"title"`
	Genre     string   `yaml:"genre" json:"genre"`
	PriceUSD  float64  `yaml:"priceUsd" json:"priceUsd"`
	Image     string   `yaml:"image" json:"image"`
	Trailer   string   `yaml:"trailer,omitempty" json:"trailer,omitempty"`
	Desc      string   `yaml:"desc,omitempty" json:"desc,omitempty"`
	Platforms []string `yaml:"platforms,omitempty" json:"platforms,omitempty"`
}

// Catalog is an ordered, read-only product list with an id index.
type Catalog struct {
	products []Product
	index    map[string]int
	meta     map[string]Meta
	skipped  int
}

// New builds a Catalog from records, keeping source order. Records without an id or
// title, with a negative price, or repeating an earlier id are skipped.
func New(records []Record) *Catalog {
	c := &Catalog{
		products: make([]Product, 0, len(records)),
		index:    make(map[string]int, len(records)),
		meta:     make(map[string]Meta),
	}
	for _, rec := range records {
		id := strings.TrimSpace(rec.ID)
		title := strings.TrimSpace(rec.Title)
		if id == "" || title == "" || rec.PriceUSD < 0 {
			c.skipped++
			continue
		}
		if _, dup := c.index[id]; dup {
			c.skipped++
			continue
		}
		c.index[id] = len(c.products)
		c.products = append(c.products, Product{
			ID:    id,
			Title: title,
			Genre: strings.TrimSpace(rec.Genre),
			Price: rec.PriceUSD,
			Image: strings.TrimSpace(rec.Image),
		})
		if rec.Trailer != "" || rec.Desc != "" || len(rec.Platforms) > 0 {
			c.meta[id] = Meta{
				Trailer:   strings.TrimSpace(rec.Trailer),
				Desc:      strings.TrimSpace(rec.Desc),
				Platforms: append([]string(nil), rec.Platforms...),
			}
		}
	}
	return c
}

// Empty returns a catalog with no products.
func Empty() *Catalog { return New(nil) }

// Products returns the catalog entries in source order.
func (c *Catalog) Products() []Product {
	if c == nil {
		return nil
	}
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Len reports the number of products.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.products)
}

// Lookup resolves a product by id.
func (c *Catalog) Lookup(id string) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// Meta returns the optional trailer, description and platforms for id.
func (c *Catalog) Meta(id string) (Meta, bool) {
	if c == nil {
		return Meta{}, false
	}
	m, ok := c.meta[id]
	return m, ok
}

// ByID returns a copy of the id lookup table.
func (c *Catalog) ByID() map[string]Product {
	out := make(map[string]Product, c.Len())
	if c == nil {
		return out
	}
	for _, p := range c.products {
		out[p.ID] = p
	}
	return out
}

// Genres lists the distinct genres in catalog order.
func (c *Catalog) Genres() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, p := range c.products {
		if p.Genre == "" || seen[p.Genre] {
			continue
		}
		seen[p.Genre] = true
		out = append(out, p.Genre)
	}
	return out
}

// Skipped reports how many source records were rejected while building the catalog.
func (c *Catalog) Skipped() int {
	if c == nil {
		return 0
	}
	return c.skipped
}
