package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-catalog-service/internal/catalog"
	"storefront-catalog-service/internal/domain"
)

func TestSeedFile_LoadSnapshot(t *testing.T) {
	seed := NewSeedFile(filepath.Join("testdata", "seed.yaml"))

	records, err := seed.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	products := make([]domain.Product, len(records))
	for i, rec := range records {
		products[i] = catalog.Normalize(i, rec, now)
	}

	assert.Equal(t, "1", products[0].ID)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), products[0].CreatedAt.UTC())

	assert.Equal(t, "WhatsApp Bot", products[1].Name)
	assert.Equal(t, "Automated replies for your shop", products[1].Description)
	assert.Equal(t, 155.0, products[1].Price)
	assert.Equal(t, domain.CategoryServices, products[1].Category)
	assert.True(t, products[1].Featured)
	assert.Equal(t, time.UnixMilli(1709298000000).UTC(), products[1].CreatedAt)

	assert.Equal(t, "3", products[2].ID)
	assert.True(t, products[2].Popular)
	assert.Equal(t, now, products[2].CreatedAt)
}

func TestSeedFile_Errors(t *testing.T) {
	_, err := NewSeedFile(filepath.Join("testdata", "missing.yaml")).LoadSnapshot(context.Background())
	assert.ErrorContains(t, err, "store: read seed file")

	_, err = ParseSeed([]byte("products: [unterminated"))
	assert.ErrorContains(t, err, "store: decode seed file")

	records, err := ParseSeed([]byte("other: 1\n"))
	require.NoError(t, err)
	assert.Empty(t, records)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewSeedFile(filepath.Join("testdata", "seed.yaml")).LoadSnapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
