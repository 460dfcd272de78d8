package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"inkforge/internal/adapter/repo"
	"inkforge/internal/http/handlers"
	"inkforge/internal/http/httpapi"
	"inkforge/internal/infra"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	app := handlers.NewApp(
		repo.NewJobRepository(dbpool),
		repo.NewAssetRepository(dbpool),
		repo.NewWalletRepository(dbpool),
		logger,
	)

	router := httpapi.NewRouter(app)

	// Serve filesystem-stored assets directly; with the s3 driver the
	// object store's public URL handles this.
	if cfg.StorageDriver == "filesystem" {
		mux := chi.NewRouter()
		mux.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StoragePath))))
		mux.Mount("/", router)
		router = mux
	}

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
