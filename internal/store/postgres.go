package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"storefront-catalog-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrProductNotFound = fmt.Errorf("store: %w", domain.ErrProductNotFound)
	ErrInvalidProduct  = fmt.Errorf("store: %w", domain.ErrInvalidProduct)
	ErrUpdateFailed    = errors.New("store: update failed, 0 rows affected")
)

const productColumns = `id, name, description, price, category, image, featured, popular, created_at`

// PostgresStore implements SnapshotSource, ProductStorer and PreferenceStorer on PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger}
}

// --- SnapshotSource Implementation ---

// LoadSnapshot returns every product row as a raw record, oldest first.
func (s *PostgresStore) LoadSnapshot(ctx context.Context) ([]domain.Record, error) {
	query := `SELECT ` + productColumns + ` FROM catalog.products ORDER BY id ASC;`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: LoadSnapshot failed to query products: %w", err)
	}
	defer rows.Close()

	records := make([]domain.Record, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("store: LoadSnapshot failed to scan product row: %w", err)
		}
		records = append(records, productRecord(p))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: LoadSnapshot iteration error: %w", err)
	}
	return records, nil
}

// --- ProductStorer Implementation ---

func (s *PostgresStore) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	query := `
		INSERT INTO catalog.products (name, description, price, category, image, featured, popular)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + productColumns + `;
	`
	row := s.db.QueryRowContext(ctx, query,
		product.Name, product.Description, product.Price, string(product.Category),
		product.Image, product.Featured, product.Popular,
	)
	created, err := scanProduct(row)
	if err != nil {
		if isCheckViolation(err) {
			return nil, ErrInvalidProduct
		}
		return nil, fmt.Errorf("store: CreateProduct failed to scan row: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	id, err := parseID(product.ID)
	if err != nil {
		return nil, err
	}
	query := `
		UPDATE catalog.products
		SET name = $1, description = $2, price = $3, category = $4, image = $5,
			featured = $6, popular = $7, updated_at = CURRENT_TIMESTAMP
		WHERE id = $8
		RETURNING ` + productColumns + `;
	`
	row := s.db.QueryRowContext(ctx, query,
		product.Name, product.Description, product.Price, string(product.Category),
		product.Image, product.Featured, product.Popular, id,
	)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		if isCheckViolation(err) {
			return nil, ErrInvalidProduct
		}
		return nil, fmt.Errorf("store: UpdateProduct failed to scan row: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	query := `DELETE FROM catalog.products WHERE id = $1;`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// --- PreferenceStorer Implementation ---

func (s *PostgresStore) GetPreference(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM catalog.preferences WHERE key = $1;`
	var value []byte
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPreferenceNotFound
		}
		return nil, fmt.Errorf("store: GetPreference failed to scan row: %w", err)
	}
	return value, nil
}

func (s *PostgresStore) PutPreference(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO catalog.preferences (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP;
	`
	result, err := s.db.ExecContext(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("store: PutPreference failed to execute upsert: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: PutPreference failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUpdateFailed
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Info("closing database connection pool")
	if err := s.db.Close(); err != nil {
		s.logger.Error("failed to close database connection pool", zap.Error(err))
		return err
	}
	s.logger.Info("database connection pool closed")
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p        domain.Product
		id       int64
		category string
		image    sql.NullString
	)
	err := row.Scan(&id, &p.Name, &p.Description, &p.Price, &category, &image, &p.Featured, &p.Popular, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ID = strconv.FormatInt(id, 10)
	p.Category = domain.Category(category)
	p.Image = image.String
	return &p, nil
}

// productRecord hands a typed row to the catalog as a raw record so that every
// source goes through the same normalization. Ids stay numeric.
func productRecord(p *domain.Product) domain.Record {
	id, _ := strconv.ParseInt(p.ID, 10, 64)
	rec := domain.Record{
		"id":          id,
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"category":    string(p.Category),
		"featured":    p.Featured,
		"popular":     p.Popular,
		"created":     p.CreatedAt,
	}
	if p.Image != "" {
		rec["image"] = p.Image
	}
	return rec
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrProductNotFound
	}
	return id, nil
}

func isCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && (pqErr.Code == "23514" || pqErr.Code == "23502")
}
