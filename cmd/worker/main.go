package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"inkforge/internal/adapter/repo"
	"inkforge/internal/dispatch"
	"inkforge/internal/infra"
	"inkforge/internal/jobs"
	"inkforge/internal/ledger"
	"inkforge/internal/persist"
	"inkforge/internal/providers/dtf"
	"inkforge/internal/providers/imagesynth"
	"inkforge/internal/providers/model3d"
	"inkforge/internal/providers/predictions"
	"inkforge/internal/resolve"
	"inkforge/internal/storage"
)

const (
	leaderLockKey = "inkforge:dispatcher:leader"
	leaderLockTTL = 30 * time.Second
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	blob, err := newBlobStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	jobsRepo := repo.NewJobRepository(pool)
	assetsRepo := repo.NewAssetRepository(pool)
	productsRepo := repo.NewProductRepository(pool)
	walletsRepo := repo.NewWalletRepository(pool)
	modelsRepo := repo.NewModel3DRepository(pool)

	var dtfOptimizer dtf.Optimizer
	if cfg.DTFBaseURL != "" {
		dtfOptimizer = dtf.NewHTTPOptimizer(dtf.Options{
			APIKey:  cfg.DTFAPIKey,
			BaseURL: cfg.DTFBaseURL,
		})
	}
	model3dClient := model3d.NewHTTPClient(model3d.Options{
		APIKey:  cfg.Model3DAPIKey,
		BaseURL: cfg.Model3DBaseURL,
	})

	deps := &jobs.Deps{
		Jobs:      jobsRepo,
		Assets:    assetsRepo,
		Products:  productsRepo,
		Models3D:  modelsRepo,
		Ledger:    ledger.New(walletsRepo, logger),
		Resolver:  resolve.New(assetsRepo),
		Persister: persist.New(blob, assetsRepo, logger),
		Predictions: predictions.NewHTTPClient(predictions.Options{
			APIKey:  cfg.PredictionsAPIKey,
			BaseURL: cfg.PredictionsBaseURL,
		}),
		Synth: imagesynth.NewHTTPSynthesizer(imagesynth.Options{
			APIKey:  cfg.ImageSynthAPIKey,
			BaseURL: cfg.ImageSynthBaseURL,
		}),
		DTF:        dtfOptimizer,
		AngleViews: model3dClient,
		Mesh:       model3dClient,
		Catalog:    imagesynth.DefaultCatalog(),
		ModelNames: jobs.DefaultModelNames(),
		Costs: ledger.Costs{
			Concept:     cfg.CostConcept,
			Angles:      cfg.CostAngles,
			Reconstruct: cfg.CostReconstruct,
		},
		Log: logger,
	}

	dispatcher := dispatch.New(jobsRepo, jobs.Registry(deps), logger,
		dispatch.WithInterval(cfg.PollInterval),
		dispatch.WithBatchSize(cfg.BatchSize),
	)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer client.Close()

		lock := infra.NewLeaderLock(client, leaderLockKey, leaderLockTTL)
		if err := awaitLeadership(ctx, lock, logger); err != nil {
			logger.Info().Msg("worker: stopped before acquiring leadership")
			return
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lock.Release(releaseCtx); err != nil {
				logger.Warn().Err(err).Msg("worker: release leader lock failed")
			}
		}()
		go refreshLeadership(ctx, lock, logger)
	} else {
		logger.Warn().Msg("worker: REDIS_ADDR not set, running without leader election")
	}

	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func newBlobStore(cfg *infra.Config) (storage.BlobStore, error) {
	if cfg.StorageDriver == "s3" {
		return storage.NewS3Store(storage.S3Options{
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			UseSSL:        cfg.S3UseSSL,
			PublicBaseURL: cfg.S3PublicURL,
		})
	}
	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	return storage.NewFileStore(storagePath, cfg.StorageBaseURL)
}

// awaitLeadership blocks until this instance claims the dispatcher lock or
// the context is canceled. Only one dispatcher may poll the jobs table at a
// time.
func awaitLeadership(ctx context.Context, lock *infra.LeaderLock, logger infra.Logger) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		ok, err := lock.Acquire(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("worker: acquire leader lock failed")
		} else if ok {
			logger.Info().Msg("worker: acquired dispatcher leadership")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func refreshLeadership(ctx context.Context, lock *infra.LeaderLock, logger infra.Logger) {
	ticker := time.NewTicker(lock.TTL() / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Refresh(ctx); err != nil {
				logger.Error().Err(err).Msg("worker: refresh leader lock failed")
			}
		}
	}
}
