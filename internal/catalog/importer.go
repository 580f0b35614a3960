package catalog

import (
	"context"
	"fmt"

	"kart-orders/internal/model"

	"github.com/rs/zerolog"
)

// DefaultBatchSize is the number of products written per transaction.
const DefaultBatchSize = 500

// Upserter writes catalog products.
type Upserter interface {
	Upsert(ctx context.Context, products []model.Product, restock bool) error
}

// Result summarises an import run.
type Result struct {
	Products int
	Batches  int
}

// Importer loads a catalog file and upserts it in batches.
type Importer struct {
	loader    Loader
	store     Upserter
	batchSize int
	logger    zerolog.Logger
}

// NewImporter creates an importer. A batchSize of zero or less uses
// DefaultBatchSize.
func NewImporter(loader Loader, store Upserter, batchSize int, logger zerolog.Logger) *Importer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Importer{
		loader:    loader,
		store:     store,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "catalog-importer").Logger(),
	}
}

// Import loads path and writes every product. Without restock, products that
// already exist keep their stock. Batches already written stay written when a
// later batch fails.
func (i *Importer) Import(ctx context.Context, path string, restock bool) (Result, error) {
	products, err := i.loader.Load(ctx, path)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for start := 0; start < len(products); start += i.batchSize {
		end := min(start+i.batchSize, len(products))
		if err := i.store.Upsert(ctx, products[start:end], restock); err != nil {
			i.logger.Error().
				Err(err).
				Int("batch", res.Batches+1).
				Int("written", res.Products).
				Msg("catalog batch failed")
			return res, fmt.Errorf("failed to import batch %d: %w", res.Batches+1, err)
		}
		res.Batches++
		res.Products += end - start
	}

	i.logger.Info().
		Str("path", path).
		Bool("restock", restock).
		Int("products", res.Products).
		Int("batches", res.Batches).
		Msg("catalog imported")

	return res, nil
}
