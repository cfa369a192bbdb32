package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	defaultTitle = "Game"
	defaultGenre = "other"
)

// Sources lists where the catalog can come from, in order of preference.
type Sources struct {
	// DataPath points at a YAML data file with a top-level "games" list.
	DataPath string
	// MarkupPath points at rendered HTML containing ".card" elements.
	MarkupPath string
	// NewID synthesizes ids for markup cards without data-id. Defaults to ULIDs.
	NewID func() string
}

type dataFile struct {
	Games []Record `yaml:"games"`
}

// Load resolves the catalog from the configured sources. It never fails: a missing
// or unreadable source is logged and the next one is tried, ending in an empty catalog.
func Load(ctx context.Context, src Sources, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}

	if records, err := readDataFile(src.DataPath); err != nil {
		logger.Warn("catalog: data source unavailable", zap.String("path", src.DataPath), zap.Error(err))
	} else if len(records) > 0 {
		c := New(records)
		logger.Info("catalog: loaded data source",
			zap.String("path", src.DataPath),
			zap.Int("products", c.Len()),
			zap.Int("skipped", c.Skipped()),
		)
		return c
	}

	if ctx.Err() != nil {
		return Empty()
	}

	if records, err := readMarkupFile(src.MarkupPath, src.NewID); err != nil {
		logger.Warn("catalog: markup source unavailable", zap.String("path", src.MarkupPath), zap.Error(err))
	} else if len(records) > 0 {
		c := New(records)
		logger.Info("catalog: derived from markup",
			zap.String("path", src.MarkupPath),
			zap.Int("products", c.Len()),
		)
		return c
	}

	logger.Warn("catalog: no source available, serving empty catalog")
	return Empty()
}

var errNoSource = errors.New("catalog: source not configured")

func readDataFile(path string) ([]Record, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errNoSource
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseYAML(f)
}

func readMarkupFile(path string, newID func() string) ([]Record, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errNoSource
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ScanMarkup(f, newID)
}

// ParseYAML decodes catalog records from a YAML data file.
func ParseYAML(r io.Reader) ([]Record, error) {
	var file dataFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	return file.Games, nil
}

// EncodeYAML writes records in the data file format accepted by ParseYAML.
func EncodeYAML(w io.Writer, records []Record) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(dataFile{Games: records}); err != nil {
		return fmt.Errorf("catalog: encode yaml: %w", err)
	}
	return enc.Close()
}

// ScanMarkup derives records from rendered catalog cards. Each ".card" contributes
// one record: id from the add-to-cart button's data-id (synthesized when absent),
// title from data-title or the card heading, genre from data-genre, price from
// data-price and image from the first img.
func ScanMarkup(r io.Reader, newID func() string) ([]Record, error) {
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse markup: %w", err)
	}

	var records []Record
	doc.Find(".card").Each(func(_ int, card *goquery.Selection) {
		id := strings.TrimSpace(card.Find(".add-to-cart").AttrOr("data-id", ""))
		if id == "" {
			id = newID()
		}
		title := strings.TrimSpace(card.AttrOr("data-title", ""))
		if title == "" {
			title = strings.TrimSpace(card.Find("h3").First().Text())
		}
		if title == "" {
			title = defaultTitle
		}
		genre := strings.TrimSpace(card.AttrOr("data-genre", ""))
		if genre == "" {
			genre = defaultGenre
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(card.AttrOr("data-price", "0")), 64)
		if err != nil || price < 0 {
			price = 0
		}
		image := card.Find("img").First().AttrOr("src", "")

		records = append(records, Record{
			ID:       id,
			Title:    title,
			Genre:    genre,
			PriceUSD: price,
			Image:    image,
		})
	})
	return records, nil
}
