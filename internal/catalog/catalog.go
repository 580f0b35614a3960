package catalog

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"kart-orders/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Loader reads a gzipped JSON-lines catalog file.
type Loader interface {
	Load(ctx context.Context, path string) ([]model.Product, error)
}

// entry is one line of a catalog file.
type entry struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Stock    int             `json:"stock"`
}

func (e entry) validate() error {
	switch {
	case e.ID <= 0:
		return fmt.Errorf("id must be positive")
	case strings.TrimSpace(e.Name) == "":
		return fmt.Errorf("name is required")
	case e.Price.IsNegative():
		return fmt.Errorf("price must not be negative")
	case e.Stock < 0:
		return fmt.Errorf("stock must not be negative")
	}
	return nil
}

// decode reads gzipped JSON lines from r. Lines that do not parse or fail
// validation are skipped and logged; a later line with the same id replaces
// an earlier one. Products come back in file order of first appearance.
func decode(ctx context.Context, r io.Reader, source string, logger zerolog.Logger) ([]model.Product, error) {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		logger.Error().Err(err).Str("source", source).Msg("failed to create gzip reader")
		return nil, fmt.Errorf("failed to create gzip reader for %s: %w", source, err)
	}
	defer gzipReader.Close()

	scanner := bufio.NewScanner(gzipReader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var products []model.Product
	index := make(map[int64]int)
	lineNo, skipped := 0, 0
	for scanner.Scan() {
		lineNo++
		if lineNo%10_000 == 0 {
			select {
			case <-ctx.Done():
				logger.Warn().Str("source", source).Msg("catalog loading cancelled")
				return nil, ctx.Err()
			default:
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var e entry
		lineErr := json.Unmarshal([]byte(line), &e)
		if lineErr == nil {
			lineErr = e.validate()
		}
		if lineErr != nil {
			skipped++
			logger.Warn().Err(lineErr).Str("source", source).Int("line", lineNo).Msg("skipping catalog line")
			continue
		}

		p := model.Product{
			ID:       e.ID,
			Name:     strings.TrimSpace(e.Name),
			Price:    e.Price,
			Category: e.Category,
			Stock:    e.Stock,
		}
		if i, seen := index[p.ID]; seen {
			products[i] = p
			continue
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}

	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Str("source", source).Msg("error reading catalog file")
		return nil, fmt.Errorf("error reading catalog file %s: %w", source, err)
	}

	logger.Info().
		Str("source", source).
		Int("products_loaded", len(products)).
		Int("lines_skipped", skipped).
		Msg("catalog file loaded successfully")

	return products, nil
}
