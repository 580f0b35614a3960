// Command catalog-import loads a gzipped JSON-lines product catalog and
// upserts it into the products table.
//
// Each line holds one product:
//
//	{"id":1,"name":"Keyboard","price":"49.90","category":"Peripherals","stock":5}
//
// With S3 enabled the file is read from S3_BUCKET under S3_PREFIX, falling
// back to the local path when the object cannot be read.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kart-orders/internal/catalog"
	"kart-orders/internal/config"
	"kart-orders/internal/database"
	"kart-orders/internal/repository"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	file := flag.String("file", "data/catalog/products.jsonl.gz", "catalog file path (S3 key suffix when S3 is enabled)")
	restock := flag.Bool("restock", false, "add the file's stock to existing products instead of keeping their stock")
	batchSize := flag.Int("batch", catalog.DefaultBatchSize, "products per transaction")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadImporter()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Logger, "catalog-import")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			return err
		}
	}

	var s3Loader catalog.Loader
	if cfg.S3.Enabled {
		s3Loader, err = catalog.NewS3Loader(ctx, cfg.S3.Bucket, cfg.S3.Region, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialise S3 loader, using local file system only")
			s3Loader = nil
		}
	}
	loader := catalog.NewFallbackLoader(s3Loader, catalog.NewFileLoader(logger), cfg.S3.Prefix, logger)

	importer := catalog.NewImporter(loader, repository.NewProductRepository(pool, logger), *batchSize, logger)
	res, err := importer.Import(ctx, *file, *restock)
	if err != nil {
		return err
	}

	fmt.Printf("imported %d products in %d batches\n", res.Products, res.Batches)
	return nil
}
