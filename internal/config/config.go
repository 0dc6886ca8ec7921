package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Snapshot sources.
const (
	SourcePostgres  = "postgres"
	SourceFirestore = "firestore"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_ENV"` specify the environment variable name,
// `validate:""` is checked after the environment has been processed.
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development" validate:"oneof=development staging production test"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	HttpServer ServerConfig
	GrpcServer GrpcServerConfig
	Postgres   PostgresConfig
	Firestore  FirestoreConfig
	Catalog    CatalogConfig
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port           string        `envconfig:"HTTP_SERVER_PORT" default:"8080" validate:"required,numeric"`
	TimeoutRead    time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s" validate:"gt=0"`
	TimeoutWrite   time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s" validate:"gt=0"`
	TimeoutIdle    time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s" validate:"gt=0"`
	RequestTimeout time.Duration `envconfig:"HTTP_SERVER_REQUEST_TIMEOUT" default:"60s" validate:"gt=0"`
}

// GrpcServerConfig holds gRPC server-specific configurations.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090" validate:"required,numeric"`
}

// PostgresConfig holds PostgreSQL database connection details.
// Preferences always live in Postgres, so it is required whatever the snapshot source.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true" validate:"required"`
	Port     string `envconfig:"POSTGRES_PORT" default:"5432" validate:"numeric"`
	User     string `envconfig:"POSTGRES_USER" required:"true" validate:"required"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true" validate:"required"`
	DBName   string `envconfig:"POSTGRES_DBNAME" required:"true" validate:"required"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable" validate:"oneof=disable require verify-ca verify-full"`
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// FirestoreConfig is only consulted when the catalog source is firestore.
type FirestoreConfig struct {
	ProjectID  string `envconfig:"FIRESTORE_PROJECT_ID"`
	Collection string `envconfig:"FIRESTORE_COLLECTION" default:"products"`
}

// CatalogConfig tunes snapshot loading and the storefront behaviour.
type CatalogConfig struct {
	Source          string        `envconfig:"CATALOG_SOURCE" default:"postgres" validate:"oneof=postgres firestore"`
	SeedFile        string        `envconfig:"CATALOG_SEED_FILE"`
	SnapshotTimeout time.Duration `envconfig:"CATALOG_SNAPSHOT_TIMEOUT" default:"10s" validate:"gt=0"`
	RefreshInterval time.Duration `envconfig:"CATALOG_REFRESH_INTERVAL" default:"30s" validate:"gt=0"`
	SearchDebounce  time.Duration `envconfig:"CATALOG_SEARCH_DEBOUNCE" default:"300ms" validate:"gt=0,lte=300ms"`
	DefaultCurrency string        `envconfig:"CATALOG_DEFAULT_CURRENCY" default:"USD" validate:"oneof=USD EUR MAD"`
}

// Load reads the configuration from environment variables and validates it.
// It should be called once during application startup, after any .env file has been loaded.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	cfg.Catalog.Source = strings.ToLower(strings.TrimSpace(cfg.Catalog.Source))
	cfg.Catalog.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.Catalog.DefaultCurrency))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct-level rules and the cross-section ones the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Catalog.Source == SourceFirestore && strings.TrimSpace(c.Firestore.ProjectID) == "" {
		return fmt.Errorf("invalid configuration: FIRESTORE_PROJECT_ID is required when CATALOG_SOURCE=%s", SourceFirestore)
	}
	return nil
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
