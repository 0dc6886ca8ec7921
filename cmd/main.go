package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"storefront-catalog-service/internal/api"
	"storefront-catalog-service/internal/catalog"
	"storefront-catalog-service/internal/config"
	"storefront-catalog-service/internal/currency"
	"storefront-catalog-service/internal/favorites"
	"storefront-catalog-service/internal/feed"
	"storefront-catalog-service/internal/logging"
	"storefront-catalog-service/internal/search"
	"storefront-catalog-service/internal/store"
	"storefront-catalog-service/internal/view"
)

const (
	serviceName     = "StorefrontCatalogService"
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "INFO: No .env file found or failed to load, relying on system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", serviceName))
	logger.Info("starting service",
		zap.String("app_env", cfg.AppEnv),
		zap.String("log_level", cfg.LogLevel),
		zap.String("catalog_source", cfg.Catalog.Source),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("service shutdown sequence finished")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Database Connection ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	cancelPing()
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database connection established")
	pg := store.NewPostgresStore(db, logger)
	defer func() {
		if err := pg.Close(); err != nil {
			logger.Warn("error closing database", zap.Error(err))
		}
	}()

	primary, closeSource, err := snapshotSource(ctx, cfg, pg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	// --- Storefront Components ---
	catalogStore := catalog.NewStore(logger)
	overlay := search.New(catalogStore, logger, search.WithDelay(cfg.Catalog.SearchDebounce))
	defer overlay.Close()

	favs, err := favorites.Load(ctx, pg, logger)
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}
	prices, err := currency.NewFormatter(ctx, pg, cfg.Catalog.DefaultCurrency, logger)
	if err != nil {
		return fmt.Errorf("create currency formatter: %w", err)
	}

	views := view.NewMemoryRenderer()
	syncer := view.NewSynchronizer(catalogStore, overlay, favs, prices, views, views, logger)
	stopSync := syncer.Start()
	defer stopSync()
	refresh := func() {
		if err := syncer.Refresh(); err != nil {
			logger.Error("view refresh failed", zap.Error(err))
		}
	}
	favs.Subscribe(refresh)
	prices.Subscribe(refresh)

	loaderOpts := []feed.Option{
		feed.WithTimeout(cfg.Catalog.SnapshotTimeout),
		feed.WithInterval(cfg.Catalog.RefreshInterval),
	}
	if cfg.Catalog.SeedFile != "" {
		loaderOpts = append(loaderOpts, feed.WithFallback(store.NewSeedFile(cfg.Catalog.SeedFile)))
	}
	loader := feed.NewLoader(primary, catalogStore, logger, loaderOpts...)

	svc := api.Services{
		Catalog:   catalogStore,
		Search:    overlay,
		Favorites: favs,
		Currency:  prices,
		Views:     views,
	}
	if cfg.Catalog.Source == config.SourcePostgres {
		svc.Products = pg
		svc.Reloader = loader
	}

	// --- Setup HTTP Server ---
	httpAPIHandler := api.NewHTTPHandler(svc, logger)
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, cfg, logger)
	httpRouter.Get("/api/v1/healthz", httpAPIHandler.HealthHandler(serviceName, db))
	httpAPIHandler.RegisterRoutes(httpRouter)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      httpRouter,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	// --- Setup gRPC Server ---
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(logging.UnaryServerInterceptor(logger)))
	api.NewGRPCHandler(svc, logger).Register(ctx, grpcServer)
	if !cfg.IsProduction() {
		reflection.Register(grpcServer)
	}
	logger.Info("gRPC services registered",
		zap.String("service_name", api.CatalogServiceName),
		zap.Bool("reflection", !cfg.IsProduction()),
	)

	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		return fmt.Errorf("listen for gRPC on port %s: %w", cfg.GrpcServer.Port, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loader.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("port", cfg.HttpServer.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		logger.Info("HTTP server has stopped")
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("port", cfg.GrpcServer.Port))
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server: %w", err)
		}
		logger.Info("gRPC server has stopped")
		return nil
	})
	g.Go(func() error {
		waitForShutdown(gctx, cancel, logger, httpServer, grpcServer)
		return nil
	})

	return g.Wait()
}

// snapshotSource builds the primary catalog source. The returned close function is never nil.
func snapshotSource(ctx context.Context, cfg *config.Config, pg *store.PostgresStore, logger *zap.Logger) (store.SnapshotSource, func(), error) {
	if cfg.Catalog.Source != config.SourceFirestore {
		return pg, func() {}, nil
	}
	client, err := store.NewFirestoreClient(ctx, cfg.Firestore.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("firestore client created",
		zap.String("project_id", cfg.Firestore.ProjectID),
		zap.String("collection", cfg.Firestore.Collection),
	)
	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Warn("error closing firestore client", zap.Error(err))
		}
	}
	return store.NewFirestoreSource(client, cfg.Firestore.Collection, logger), closeClient, nil
}

func setupBaseMiddleware(router *chi.Mux, cfg *config.Config, logger *zap.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logging.RequestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.HttpServer.RequestTimeout))
	logger.Debug("base HTTP middleware registered", zap.Duration("request_timeout", cfg.HttpServer.RequestTimeout))
}

// waitForShutdown blocks until a termination signal arrives or ctx is cancelled by a
// failing server, then stops both servers and cancels the remaining work.
func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *zap.Logger,
	httpServer *http.Server,
	grpcServer *grpc.Server,
) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, starting graceful shutdown", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Warn("shutting down after component failure")
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("HTTP server gracefully shut down")
	}

	select {
	case <-stoppedGrpc:
		logger.Info("gRPC server gracefully shut down")
	case <-shutdownCtx.Done():
		logger.Warn("gRPC server graceful shutdown timed out, forcing stop", zap.Error(shutdownCtx.Err()))
		grpcServer.Stop()
	}
}
