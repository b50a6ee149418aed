package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"fleetsite/api/internal/app"
	"fleetsite/api/internal/config"
	"fleetsite/api/internal/media"
	"fleetsite/api/internal/metrics"
	"fleetsite/api/internal/polls"
	"fleetsite/api/internal/provenance"
	"fleetsite/api/internal/resolver"
	"fleetsite/api/internal/search"
	"fleetsite/api/internal/store"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)

	ctx := context.Background()
	m := metrics.New()

	var counters *provenance.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		var err error
		counters, err = provenance.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer counters.Close()
		log.Info("recording provenance counters in redis")
	}
	observersFor := func(endpoint string) []resolver.Observer {
		observers := []resolver.Observer{m.For(endpoint)}
		if counters != nil {
			observers = append(observers, counters.For(endpoint))
		}
		return observers
	}

	deps := app.Dependencies{}

	db, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		if errors.Is(err, store.ErrNotConfigured) {
			log.Warn("DATABASE_URL not set; /api/events will answer CONFIG_MISSING")
		} else {
			log.Errorf("database configuration invalid: %v", err)
		}
		deps.StoreErr = err
	} else {
		defer db.Close()
		prepareDatabase(ctx, db, cfg.MigrationsDir)
		deps.EventStore = store.NewEventStore(db)
		deps.EventObservers = observersFor("events")
	}

	var index, fts search.Searcher
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		index = meiliClient
	}
	var pgfts *search.PgFTS
	if db != nil {
		pgfts = search.NewPgFTS(db)
		fts = pgfts
	}
	searchService := search.NewService(index, fts, cfg.TierTimeout, cfg.OverallBudget).Observe(observersFor("search")...)
	deps.Search = searchService
	if meiliClient != nil && pgfts != nil {
		searchService.KeepIndexed(pgfts)
	}

	registry := polls.NewRegistry(cfg.PollRegistryPath)
	log.WithField("polls", registry.Load()).Info("poll registry loaded")
	var pollStore polls.Store
	if db != nil {
		pollStore = store.NewPollStore(db)
	}
	deps.Polls = polls.NewService(pollStore, registry, cfg.TierTimeout, cfg.OverallBudget).Observe(observersFor("polls")...)

	if strings.TrimSpace(cfg.MediaEndpoint) != "" {
		lister, err := media.NewMinioLister(cfg.MediaEndpoint, cfg.MediaAccessKey, cfg.MediaSecretKey, cfg.MediaBucket, cfg.MediaUseSSL)
		if err != nil {
			log.Fatalf("media client failed: %v", err)
		}
		deps.Images = media.NewFolderCache(lister, cfg.MediaBucket, cfg.MediaPublicBaseURL, cfg.MediaCacheTTL)
	}
	if counters != nil {
		deps.Provenance = counters
	}

	service := app.New(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin).WithMetrics(m.Handler())
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infof("fleetsite API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown error: %v", err)
	}
}

// prepareDatabase applies pending migrations when the database answers. An
// unreachable database is not fatal: every resolver degrades to its floor.
func prepareDatabase(ctx context.Context, db *sql.DB, migrationsDir string) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Warnf("database unreachable at startup, serving fallbacks until it recovers: %v", err)
		return
	}
	if err := store.ApplyMigrations(ctx, db, migrationsDir); err != nil {
		log.Errorf("migrations failed: %v", err)
	}
}
