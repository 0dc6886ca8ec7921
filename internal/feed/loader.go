// Package feed keeps the catalog store in step with its snapshot sources.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storefront-catalog-service/internal/catalog"
	"storefront-catalog-service/internal/domain"
	"storefront-catalog-service/internal/store"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 30 * time.Second
)

// Origin names where an ingested snapshot came from.
type Origin string

const (
	OriginPrimary Origin = "primary"
	OriginSeed    Origin = "seed"
	OriginEmpty   Origin = "empty"
	OriginWatch   Origin = "watch"
)

// Ingester receives full snapshots. *catalog.Store satisfies it.
type Ingester interface {
	Ingest(records []domain.Record) catalog.IngestResult
}

// Report describes one completed load.
type Report struct {
	Origin     Origin        `json:"origin"`
	Accepted   int           `json:"accepted"`
	Duplicates int           `json:"duplicates"`
	Took       time.Duration `json:"took"`
	// PrimaryErr is set when the primary source failed and a fallback was ingested instead.
	PrimaryErr error `json:"-"`
}

// Degraded reports whether the primary source was bypassed.
func (r Report) Degraded() bool {
	return r.Origin != OriginPrimary && r.Origin != OriginWatch
}

// Loader pulls snapshots from a primary source with a bounded wait and falls back
// to a seed source, then to an empty catalog, so the ready gate always opens.
type Loader struct {
	primary  store.SnapshotSource
	fallback store.SnapshotSource
	target   Ingester
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
	group    singleflight.Group
	loaded   atomic.Bool
}

type Option func(*Loader)

// WithFallback sets the source consulted when the primary fails or times out.
func WithFallback(src store.SnapshotSource) Option {
	return func(l *Loader) { l.fallback = src }
}

// WithTimeout bounds each primary load.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithInterval sets the polling period used when the primary cannot push snapshots.
func WithInterval(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.interval = d
		}
	}
}

func NewLoader(primary store.SnapshotSource, target Ingester, logger *zap.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{
		primary:  primary,
		target:   target,
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches one snapshot and ingests it. Concurrent calls share a single fetch,
// which runs detached from any one caller's context and is bounded by the load timeout.
// A caller whose ctx ends first gets ctx's error while the shared fetch carries on.
// Fallbacks apply to the first load only: once a snapshot has been ingested a failed
// refresh returns an error and leaves the current catalog in place.
func (l *Loader) Load(ctx context.Context) (Report, error) {
	ch := l.group.DoChan("snapshot", func() (any, error) {
		return l.load(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return Report{}, fmt.Errorf("feed: load abandoned: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Report{}, res.Err
		}
		if res.Shared {
			l.logger.Debug("snapshot load shared with concurrent caller")
		}
		return res.Val.(Report), nil
	}
}

func (l *Loader) load(ctx context.Context) (Report, error) {
	start := time.Now()

	records, primaryErr := l.fetch(ctx, l.primary)
	origin := OriginPrimary
	if primaryErr != nil {
		if l.loaded.Load() {
			return Report{}, fmt.Errorf("feed: refresh failed, keeping current catalog: %w", primaryErr)
		}
		l.logger.Warn("primary snapshot source unavailable, falling back", zap.Error(primaryErr))
		records, origin = l.fallbackRecords(ctx)
	}

	res := l.target.Ingest(records)
	l.loaded.Store(true)
	report := Report{
		Origin:     origin,
		Accepted:   res.Accepted,
		Duplicates: res.Duplicates,
		Took:       time.Since(start),
		PrimaryErr: primaryErr,
	}
	fields := []zap.Field{
		zap.String("origin", string(report.Origin)),
		zap.Int("accepted", report.Accepted),
		zap.Int("duplicates", report.Duplicates),
		zap.Duration("took", report.Took),
	}
	if report.Degraded() {
		l.logger.Warn("snapshot load complete without primary source", fields...)
	} else {
		l.logger.Info("snapshot load complete", fields...)
	}
	return report, nil
}

func (l *Loader) fetch(ctx context.Context, src store.SnapshotSource) ([]domain.Record, error) {
	if src == nil {
		return nil, errors.New("feed: no snapshot source configured")
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	type result struct {
		records []domain.Record
		err     error
	}
	done := make(chan result, 1)
	go func() {
		records, err := src.LoadSnapshot(ctx)
		done <- result{records, err}
	}()

	select {
	case r := <-done:
		return r.records, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("feed: snapshot wait exceeded %s: %w", l.timeout, ctx.Err())
	}
}

func (l *Loader) fallbackRecords(ctx context.Context) ([]domain.Record, Origin) {
	if l.fallback != nil {
		records, err := l.fetch(ctx, l.fallback)
		if err == nil {
			return records, OriginSeed
		}
		l.logger.Warn("seed snapshot unavailable, starting with an empty catalog", zap.Error(err))
	}
	return []domain.Record{}, OriginEmpty
}

// Run performs an initial load and then keeps the catalog current until ctx is done.
// Sources that can push snapshots are watched; others are polled every interval.
func (l *Loader) Run(ctx context.Context) error {
	if _, err := l.Load(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if w, ok := l.primary.(store.SnapshotWatcher); ok {
		err := w.WatchSnapshots(ctx, func(records []domain.Record) {
			res := l.target.Ingest(records)
			l.logger.Info("snapshot pushed",
				zap.String("origin", string(OriginWatch)),
				zap.Int("accepted", res.Accepted),
				zap.Int("duplicates", res.Duplicates),
			)
		})
		if err == nil || ctx.Err() != nil {
			return nil
		}
		l.logger.Error("snapshot watch failed, switching to polling", zap.Error(err), zap.Duration("interval", l.interval))
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := l.Load(ctx); err != nil && ctx.Err() == nil {
				l.logger.Error("periodic snapshot load failed", zap.Error(err))
			}
		}
	}
}
