package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"storefront-catalog-service/internal/domain"
)

// DefaultProductsCollection is the collection the storefront reads products from.
const DefaultProductsCollection = "products"

// NewFirestoreClient dials Firestore for projectID. FIRESTORE_EMULATOR_HOST is honored by the client library.
func NewFirestoreClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*firestore.Client, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w", err)
	}
	return client, nil
}

// FirestoreSource reads the product collection as raw records and streams its snapshots.
type FirestoreSource struct {
	client     *firestore.Client
	collection string
	logger     *zap.Logger
}

// NewFirestoreSource wraps an existing client. An empty collection defaults to DefaultProductsCollection.
func NewFirestoreSource(client *firestore.Client, collection string, logger *zap.Logger) *FirestoreSource {
	if client == nil {
		panic("store: firestore client is required")
	}
	if strings.TrimSpace(collection) == "" {
		collection = DefaultProductsCollection
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirestoreSource{client: client, collection: collection, logger: logger}
}

// LoadSnapshot reads every document of the collection once.
func (s *FirestoreSource) LoadSnapshot(ctx context.Context) ([]domain.Record, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	records := make([]domain.Record, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store: load firestore snapshot failed: %w", err)
		}
		records = append(records, documentRecord(snap))
	}
	return records, nil
}

// WatchSnapshots calls fn with the full collection contents every time it changes.
// It returns nil once ctx is cancelled.
func (s *FirestoreSource) WatchSnapshots(ctx context.Context, fn func([]domain.Record)) error {
	it := s.client.Collection(s.collection).Snapshots(ctx)
	defer it.Stop()

	for {
		qs, err := it.Next()
		if err != nil {
			if watchEnded(ctx, err) {
				return nil
			}
			return fmt.Errorf("store: watch firestore snapshots failed: %w", err)
		}
		docs, err := qs.Documents.GetAll()
		if err != nil {
			return fmt.Errorf("store: read firestore snapshot failed: %w", err)
		}
		records := make([]domain.Record, 0, len(docs))
		for _, doc := range docs {
			records = append(records, documentRecord(doc))
		}
		s.logger.Debug("firestore snapshot received",
			zap.String("collection", s.collection),
			zap.Int("documents", len(records)),
			zap.Int("changes", len(qs.Changes)),
		)
		fn(records)
	}
}

// watchEnded reports whether a snapshot iterator error is the listener shutting down
// rather than a failure.
func watchEnded(ctx context.Context, err error) bool {
	return ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled)
}

func documentRecord(snap *firestore.DocumentSnapshot) domain.Record {
	return recordFromDocument(snap.Ref.ID, snap.Data())
}

// recordFromDocument uses the document id unless the document carries its own.
// data is copied so the record never aliases the snapshot.
func recordFromDocument(docID string, data map[string]any) domain.Record {
	rec := make(domain.Record, len(data)+1)
	for k, v := range data {
		rec[k] = v
	}
	if id, ok := rec["id"]; !ok || id == nil || id == "" {
		rec["id"] = docID
	}
	return rec
}
