// Package main wires together the headhunter service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsubclient "cloud.google.com/go/pubsub"
	storageclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/clanforge/headhunter/internal/api"
	"github.com/clanforge/headhunter/internal/app"
	"github.com/clanforge/headhunter/internal/blacklist"
	"github.com/clanforge/headhunter/internal/cache"
	"github.com/clanforge/headhunter/internal/clock/system"
	"github.com/clanforge/headhunter/internal/config"
	"github.com/clanforge/headhunter/internal/fetch"
	"github.com/clanforge/headhunter/internal/id/uuid"
	"github.com/clanforge/headhunter/internal/lock"
	"github.com/clanforge/headhunter/internal/logging"
	"github.com/clanforge/headhunter/internal/metrics"
	"github.com/clanforge/headhunter/internal/pool"
	memorypublisher "github.com/clanforge/headhunter/internal/publisher/memory"
	pubsubpublisher "github.com/clanforge/headhunter/internal/publisher/pubsub"
	"github.com/clanforge/headhunter/internal/recruit"
	"github.com/clanforge/headhunter/internal/scanner"
	"github.com/clanforge/headhunter/internal/scoring"
	"github.com/clanforge/headhunter/internal/storage/gcs"
	"github.com/clanforge/headhunter/internal/storage/local"
	memorystorage "github.com/clanforge/headhunter/internal/storage/memory"
	"github.com/clanforge/headhunter/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.NewUUIDGenerator()
	locks := lock.NewRegistry()

	// The execution cache and web payload are ephemeral by design, so the
	// cache store stays in-memory regardless of backend.
	cacheStore := memorystorage.NewCacheStore(clock)

	var (
		rosterStore recruit.RosterStore
		propStore   recruit.PropertyStore
	)
	switch cfg.Storage.Backend {
	case "postgres":
		pgpool, err := postgres.Connect(ctx, postgres.ConnectConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxConns),
			MinConns: int32(cfg.DB.MinConns),
		})
		if err != nil {
			logger.Fatal("postgres connect failed", zap.Error(err))
		}
		defer pgpool.Close()
		roster, err := postgres.NewRosterStore(pgpool, "recruits")
		if err != nil {
			logger.Fatal("roster store init failed", zap.Error(err))
		}
		props, err := postgres.NewPropertyStore(pgpool, "properties")
		if err != nil {
			logger.Fatal("property store init failed", zap.Error(err))
		}
		rosterStore, propStore = roster, props
	default:
		rosterStore = memorystorage.NewRosterStore()
		propStore = memorystorage.NewPropertyStore()
	}

	var blobStore recruit.BlobStore
	switch {
	case cfg.Storage.GCSBucket != "":
		client, err := storageclient.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		defer client.Close() //nolint:errcheck
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Fatal("gcs blob store init failed", zap.Error(err))
		}
		blobStore = store
	case cfg.Storage.LocalDir != "":
		store, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			logger.Fatal("local blob store init failed", zap.Error(err))
		}
		blobStore = store
	default:
		blobStore = memorystorage.NewBlobStore()
	}

	var publisher recruit.Publisher
	if cfg.PubSub.Enabled {
		client, err := pubsubclient.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		pub, err := pubsubpublisher.New(client)
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
		defer pub.Close()
		publisher = pub
	} else {
		publisher = memorypublisher.New()
	}

	webCache := cache.NewChunked(cacheStore, logger.Named("cache"))
	props := cache.NewProps(propStore, logger.Named("props"))
	blacklistStore := blacklist.NewStore(
		props,
		clock,
		time.Duration(cfg.Headhunter.BlacklistDays)*24*time.Hour,
		logger.Named("blacklist"),
	)
	weights := scoring.Weights{
		Trophy:   cfg.Headhunter.TrophyWeight,
		Donation: cfg.Headhunter.DonationWeight,
		War:      cfg.Headhunter.WarWeight,
	}
	poolMgr := pool.NewManager(rosterStore, blobStore, clock, weights, cfg.Headhunter.PoolTarget, logger.Named("pool"))

	fetchCfg := fetch.Config{
		BatchSize:       cfg.Scan.BatchSize,
		MaxFetches:      cfg.Scan.MaxFetches,
		InterChunkDelay: time.Duration(cfg.Scan.InterChunkDelayMs) * time.Millisecond,
		Retry: fetch.RetryPolicy{
			MaxAttempts: cfg.HTTP.MaxRetries,
			BaseDelay:   time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		},
		UserAgent: cfg.HTTP.UserAgent,
	}
	scanCfg := scanner.Config{
		Keywords:      cfg.Headhunter.Keywords,
		LotteryWindow: cfg.Scan.LotteryWindow,
		SampleSize:    cfg.Scan.SampleSize,
		MinMembers:    cfg.Scan.MinMembers,
		ProfileCap:    cfg.Scan.ProfileCap,
		WarBonus:      cfg.Headhunter.WarBonus,
		TimeBudget:    cfg.TimeBudget(),
	}
	httpClient := &http.Client{Timeout: time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second}

	scout := app.NewScout(
		app.Config{
			ClanTag:      cfg.Headhunter.ClanTag,
			TrophyFloor:  cfg.Headhunter.TrophyFloor,
			FillingRatio: cfg.Headhunter.FillingRatio,
			Topic:        cfg.PubSub.TopicName,
		},
		httpClient,
		cfg.API.Keys,
		fetchCfg,
		scanCfg,
		weights,
		cfg.API.BaseURL,
		blacklistStore,
		poolMgr,
		webCache,
		publisher,
		clock,
		idGen,
		locks,
		logger.Named("scout"),
	)

	apiServer := api.NewServer(scout, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go runScheduler(ctx, scout, cfg, logger.Named("scheduler"))

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// runScheduler runs one scout cycle at startup and then on every interval
// tick until the context is canceled.
func runScheduler(ctx context.Context, scout *app.Scout, cfg config.Config, logger *zap.Logger) {
	run := func() {
		runCtx, cancel := context.WithTimeout(ctx, cfg.TimeBudget()+time.Minute)
		defer cancel()
		if _, err := scout.Run(runCtx); err != nil {
			if errors.Is(err, app.ErrScanInProgress) {
				logger.Warn("scheduled scan skipped, another run in progress")
				return
			}
			logger.Error("scheduled scan failed", zap.Error(err))
		}
	}

	run()
	ticker := time.NewTicker(cfg.ScanInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
