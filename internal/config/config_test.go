package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_USER", "catalog")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DBNAME", "storefront")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.HttpServer.Port)
	assert.Equal(t, "9090", cfg.GrpcServer.Port)
	assert.Equal(t, SourcePostgres, cfg.Catalog.Source)
	assert.Equal(t, 10*time.Second, cfg.Catalog.SnapshotTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.Catalog.SearchDebounce)
	assert.Equal(t, "USD", cfg.Catalog.DefaultCurrency)
	assert.Equal(t, "products", cfg.Firestore.Collection)
	assert.Equal(t, "host=localhost port=5432 user=catalog password=secret dbname=storefront sslmode=disable", cfg.Postgres.DSN())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("CATALOG_SOURCE", "Firestore")
	t.Setenv("FIRESTORE_PROJECT_ID", "storefront-prod")
	t.Setenv("CATALOG_SEARCH_DEBOUNCE", "150ms")
	t.Setenv("CATALOG_DEFAULT_CURRENCY", "mad")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SourceFirestore, cfg.Catalog.Source)
	assert.Equal(t, 150*time.Millisecond, cfg.Catalog.SearchDebounce)
	assert.Equal(t, "MAD", cfg.Catalog.DefaultCurrency)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing postgres host", env: map[string]string{"POSTGRES_HOST": ""}},
		{name: "unknown source", env: map[string]string{"CATALOG_SOURCE": "mysql"}},
		{name: "firestore without project", env: map[string]string{"CATALOG_SOURCE": "firestore"}},
		{name: "debounce above cap", env: map[string]string{"CATALOG_SEARCH_DEBOUNCE": "1s"}},
		{name: "unsupported currency", env: map[string]string{"CATALOG_DEFAULT_CURRENCY": "GBP"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "verbose"}},
		{name: "non-numeric port", env: map[string]string{"HTTP_SERVER_PORT": "http"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
