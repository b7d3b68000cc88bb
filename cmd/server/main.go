package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"route-segment-service/internal/adapters/cache"
	"route-segment-service/internal/adapters/distance"
	"route-segment-service/internal/adapters/locks"
	"route-segment-service/internal/adapters/memstore"
	"route-segment-service/internal/adapters/repositories"
	"route-segment-service/internal/api"
	"route-segment-service/internal/config"
	"route-segment-service/internal/platform/db"
	"route-segment-service/internal/platform/logger"
	"route-segment-service/internal/ports"
	"route-segment-service/internal/services"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type stores struct {
	segments  ports.SegmentStore
	locations ports.LocationRepository
	points    ports.RoutePointRepository
	db        *sql.DB
}

// main is the application composition root.
// It wires concrete adapters (Postgres or memory, ORS, locks) behind ports and
// starts the HTTP server.
func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	defer logger.Sync()
	log := logger.GetLogger("server")

	if envErr != nil {
		log.Info("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatalw("open stores", "err", err)
	}
	if st.db != nil {
		defer st.db.Close()
	}

	primitive, closeLock, err := openLockPrimitive(ctx, cfg, st.db)
	if err != nil {
		log.Fatalw("open lock backend", "backend", cfg.LockBackend, "err", err)
	}
	defer closeLock()

	var provider ports.RouteProvider
	if cfg.ORSAPIKey != "" {
		ors, err := distance.NewORSRouteProvider(distance.ORSConfig{
			APIKey:       cfg.ORSAPIKey,
			BaseURL:      cfg.ORSBaseURL,
			Profile:      cfg.ORSProfile,
			Timeout:      cfg.ORSTimeout,
			RetryBackoff: cfg.ORSRetryBackoff,
		})
		if err != nil {
			log.Fatalw("routing provider", "err", err)
		}
		provider = ors
	} else {
		log.Warn("ORS_API_KEY not set, distances use the great-circle estimate")
	}

	segments := services.NewRoadSegmentCache(
		st.segments,
		st.locations,
		distance.NewResolver(provider),
		services.NewSegmentLockCoordinator(primitive),
		services.RoadSegmentCacheConfig{
			FallbackUpgradeAfter: cfg.FallbackUpgradeAfter,
			ProviderRefreshAfter: cfg.ProviderRefreshAfter,
			ResolveTimeout:       cfg.ResolveTimeout,
		},
	)
	cascade := services.NewInvalidationCascade(st.segments, st.points, segments, services.CascadeConfig{
		ResolveConcurrency: cfg.CascadeResolveConcurrency,
		WriteConcurrency:   cfg.CascadeWriteConcurrency,
	})
	derived := services.NewDerivedMetricsPass(st.points)
	updater := services.NewLocationUpdater(st.locations, cascade, derived, cfg.CoordinateEpsilon)

	router := api.NewRouter(api.Services{
		Segments: segments,
		Updater:  updater,
		Derived:  derived,
	})

	// Cascades may wait on several provider round trips.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infow("server listening", "addr", srv.Addr, "lock_backend", cfg.LockBackend, "postgres", st.db != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalw("server stopped", "err", err)
	}
}

// openStores uses Postgres when DATABASE_URL is set, otherwise an in-memory
// store seeded from SEED_PATH.
func openStores(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (stores, error) {
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return stores{}, err
		}
		return stores{
			segments:  cache.NewSQLSegmentCache(conn),
			locations: repositories.NewSQLLocationRepository(conn),
			points:    repositories.NewSQLRoutePointRepository(conn),
			db:        conn,
		}, nil
	}

	mem := memstore.New()
	seed, err := repositories.LoadSeed(cfg.SeedPath)
	if err != nil {
		log.Warnw("in-memory store starts empty", "seed", cfg.SeedPath, "err", err)
	} else {
		for _, loc := range seed.DomainLocations() {
			mem.PutLocation(loc)
		}
		mem.PutRoutePoints(seed.DomainRoutePoints()...)
	}

	return stores{segments: mem, locations: mem, points: mem}, nil
}

// openLockPrimitive returns nil for the "none" backend; the coordinator then
// fails open on every call.
func openLockPrimitive(ctx context.Context, cfg config.Config, conn *sql.DB) (ports.LockPrimitive, func(), error) {
	noop := func() {}

	backend := cfg.LockBackend
	if backend == "" {
		backend = "memory"
		if conn != nil {
			backend = "postgres"
		}
	}

	switch backend {
	case "postgres":
		if conn == nil {
			return nil, noop, errors.New("postgres lock backend needs DATABASE_URL")
		}
		lockPool, err := db.OpenLockPool(ctx, cfg.DatabaseURL, cfg.LockPoolSize)
		if err != nil {
			return nil, noop, err
		}
		return locks.NewPGAdvisoryLock(lockPool), func() { _ = lockPool.Close() }, nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, noop, errors.New("redis lock backend needs REDIS_URL")
		}
		client, err := locks.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return locks.NewRedisLock(client, cfg.LockTTL), func() { _ = client.Close() }, nil
	case "memory":
		return locks.NewLocalLock(), noop, nil
	case "none":
		return nil, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown lock backend %q", backend)
	}
}
