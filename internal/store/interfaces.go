package store

import (
	"context"

	"storefront-catalog-service/internal/domain"
)

// SnapshotSource yields the full product snapshot as raw records.
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context) ([]domain.Record, error)
}

// SnapshotWatcher pushes a full snapshot every time the backing data changes.
// WatchSnapshots blocks until ctx is done or the stream fails.
type SnapshotWatcher interface {
	SnapshotSource
	WatchSnapshots(ctx context.Context, fn func([]domain.Record)) error
}

// ProductStorer defines the admin write operations. The storer assigns product identifiers.
type ProductStorer interface {
	CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// PreferenceStorer persists small JSON preference values (favorites, display currency).
type PreferenceStorer interface {
	GetPreference(ctx context.Context, key string) ([]byte, error)
	PutPreference(ctx context.Context, key string, value []byte) error
}
