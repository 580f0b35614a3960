package catalog

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createCatalogFile writes lines into a gzipped file under a temp dir.
func createCatalogFile(t *testing.T, filename string, lines []string) string {
	t.Helper()
	filePath := filepath.Join(t.TempDir(), filename)

	file, err := os.Create(filePath)
	require.NoError(t, err)
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	_, err = gzipWriter.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)

	return filePath
}

func TestFileLoader_Load_Success(t *testing.T) {
	loader := NewFileLoader(zerolog.Nop())

	filePath := createCatalogFile(t, "catalog.gz", []string{
		`{"id":1,"name":"Keyboard","price":"49.90","category":"Peripherals","stock":5}`,
		`{"id":2,"name":"Mouse","price":19.9,"category":"Peripherals","stock":0}`,
	})

	products, err := loader.Load(context.Background(), filePath)

	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int64(1), products[0].ID)
	assert.Equal(t, "Keyboard", products[0].Name)
	assert.True(t, decimal.RequireFromString("49.90").Equal(products[0].Price))
	assert.Equal(t, 5, products[0].Stock)
	assert.True(t, decimal.RequireFromString("19.90").Equal(products[1].Price))
	assert.Equal(t, 0, products[1].Stock)
}

func TestFileLoader_Load_SkipsInvalidLines(t *testing.T) {
	loader := NewFileLoader(zerolog.Nop())

	filePath := createCatalogFile(t, "catalog.gz", []string{
		``,
		`not json`,
		`{"id":0,"name":"Zero","price":"1.00","stock":1}`,
		`{"id":3,"name":"  ","price":"1.00","stock":1}`,
		`{"id":4,"name":"Negative","price":"-1.00","stock":1}`,
		`{"id":5,"name":"Oversold","price":"1.00","stock":-2}`,
		`{"id":6,"name":"Cable","price":"4.50","stock":12}`,
	})

	products, err := loader.Load(context.Background(), filePath)

	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int64(6), products[0].ID)
}

func TestFileLoader_Load_LastLineWins(t *testing.T) {
	loader := NewFileLoader(zerolog.Nop())

	filePath := createCatalogFile(t, "catalog.gz", []string{
		`{"id":1,"name":"Keyboard","price":"49.90","stock":5}`,
		`{"id":2,"name":"Mouse","price":"19.90","stock":1}`,
		`{"id":1,"name":"Keyboard Pro","price":"59.90","stock":7}`,
	})

	products, err := loader.Load(context.Background(), filePath)

	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Keyboard Pro", products[0].Name)
	assert.Equal(t, 7, products[0].Stock)
	assert.Equal(t, int64(2), products[1].ID)
}

func TestFileLoader_Load_FileNotFound(t *testing.T) {
	loader := NewFileLoader(zerolog.Nop())

	products, err := loader.Load(context.Background(), "/nonexistent/catalog.gz")

	assert.Error(t, err)
	assert.Nil(t, products)
	assert.Contains(t, err.Error(), "failed to open catalog file")
}

func TestFileLoader_Load_NotGzipped(t *testing.T) {
	loader := NewFileLoader(zerolog.Nop())

	filePath := filepath.Join(t.TempDir(), "plain.json")
	require.NoError(t, os.WriteFile(filePath, []byte(`{"id":1}`), 0o644))

	_, err := loader.Load(context.Background(), filePath)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gzip")
}

func TestFileLoader_Load_Cancelled(t *testing.T) {
	loader := NewFileLoader(zerolog.Nop())

	lines := make([]string, 20_000)
	for i := range lines {
		lines[i] = `{"id":1,"name":"Same","price":"1.00","stock":1}`
	}
	filePath := createCatalogFile(t, "big.gz", lines)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, filePath)

	assert.ErrorIs(t, err, context.Canceled)
}
