package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

type line struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category string `json:"category"`
	Stock    int    `json:"stock"`
}

// Writes data/catalog/products.jsonl.gz for cmd/catalog-import. Mouse has a
// single unit so two buyers can race for it.
func main() {
	dataDir := "data/catalog"

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	products := []line{
		{ID: 1, Name: "Mechanical Keyboard", Price: "49.90", Category: "Peripherals", Stock: 5},
		{ID: 2, Name: "Wireless Mouse", Price: "19.90", Category: "Peripherals", Stock: 1},
		{ID: 3, Name: "USB-C Cable", Price: "4.50", Category: "Accessories", Stock: 100},
		{ID: 4, Name: "27in Monitor", Price: "199.00", Category: "Displays", Stock: 3},
		{ID: 5, Name: "Laptop Stand", Price: "29.00", Category: "Accessories", Stock: 0},
	}

	filePath := filepath.Join(dataDir, "products.jsonl.gz")
	if err := writeCatalog(filePath, products); err != nil {
		log.Fatalf("Failed to create %s: %v", filePath, err)
	}

	fmt.Printf("Created %s with %d products\n", filePath, len(products))
	fmt.Println("Import with: go run ./cmd/catalog-import -file " + filePath)
}

func writeCatalog(filePath string, products []line) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	enc := json.NewEncoder(gzipWriter)
	for _, p := range products {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("failed to write product %d: %w", p.ID, err)
		}
	}

	return nil
}
