package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hadiwinata/mediaforge/internal/adapter/repo"
	"github.com/hadiwinata/mediaforge/internal/gate"
	"github.com/hadiwinata/mediaforge/internal/http/handlers"
	"github.com/hadiwinata/mediaforge/internal/http/httpapi"
	"github.com/hadiwinata/mediaforge/internal/infra"
	"github.com/hadiwinata/mediaforge/internal/ledger"
	"github.com/hadiwinata/mediaforge/internal/orchestrator"
	"github.com/hadiwinata/mediaforge/internal/queue"
	"github.com/hadiwinata/mediaforge/internal/retry"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: redis connection failed")
	}
	defer rdb.Close()

	jobs := repo.NewJobRepository(pool)
	tenants := repo.NewTenantRepository(pool)
	led := ledger.New(repo.NewLedgerStore(pool), logger)

	maintenance := gate.NewMaintenanceController(gate.MaintenanceState{
		Enabled: cfg.MaintenanceMode,
		Message: cfg.MaintenanceMessage,
	})
	manager := orchestrator.NewManager(
		jobs, tenants, led, queue.NewRedis(rdb),
		gate.New(maintenance, nil),
		retry.Policy{},
		logger,
	)

	app := &handlers.App{
		Manager:     manager,
		Ledger:      led,
		Tenants:     tenants,
		Maintenance: maintenance,
		Logger:      logger,
	}
	router := httpapi.NewRouter(app, httpapi.Options{AdminToken: cfg.AdminToken})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("api: listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown failed")
	}
	logger.Info().Msg("api: stopped")
}
