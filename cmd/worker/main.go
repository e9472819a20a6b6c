package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hadiwinata/mediaforge/internal/adapter/repo"
	"github.com/hadiwinata/mediaforge/internal/domain"
	"github.com/hadiwinata/mediaforge/internal/gate"
	"github.com/hadiwinata/mediaforge/internal/infra"
	"github.com/hadiwinata/mediaforge/internal/ledger"
	"github.com/hadiwinata/mediaforge/internal/orchestrator"
	"github.com/hadiwinata/mediaforge/internal/provider"
	"github.com/hadiwinata/mediaforge/internal/queue"
	"github.com/hadiwinata/mediaforge/internal/retry"
	"github.com/hadiwinata/mediaforge/internal/storage"
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
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer rdb.Close()

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: storage init failed")
	}

	jobs := repo.NewJobRepository(pool)
	tenants := repo.NewTenantRepository(pool)
	led := ledger.New(repo.NewLedgerStore(pool), logger)
	q := queue.NewRedis(rdb)

	maintenance := gate.NewMaintenanceController(gate.MaintenanceState{
		Enabled: cfg.MaintenanceMode,
		Message: cfg.MaintenanceMessage,
	})
	manager := orchestrator.NewManager(
		jobs, tenants, led, q,
		gate.New(maintenance, nil),
		retry.Policy{},
		logger,
	)

	registry := provider.NewRegistry(buildGateways(cfg, jobs, store, logger), nil)

	worker := orchestrator.NewWorker(manager, q, registry, logger, orchestrator.WorkerOptions{
		Concurrency: cfg.WorkerConcurrency,
	})

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker: starting")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// buildGateways wires one gateway per module. Without a vendor API key every
// generation module runs against the synthetic gateway, which is enough for
// local development.
func buildGateways(cfg *infra.Config, jobs domain.JobRepository, store *storage.FileStore, logger zerolog.Logger) map[domain.JobModule]provider.Gateway {
	gateways := map[domain.JobModule]provider.Gateway{
		domain.ModuleExport: provider.NewExportGateway(jobs, store),
	}

	if cfg.VendorAPIKey == "" {
		logger.Warn().Msg("worker: no vendor api key, using synthetic gateways")
		gateways[domain.ModuleTextToImage] = provider.NewSynthetic(domain.ArtifactImage, 50*time.Millisecond)
		gateways[domain.ModuleTextToVideo] = provider.NewSynthetic(domain.ArtifactVideo, 50*time.Millisecond)
		gateways[domain.ModuleImageToVideo] = provider.NewSynthetic(domain.ArtifactVideo, 50*time.Millisecond)
		gateways[domain.ModuleTextToAudio] = provider.NewSynthetic(domain.ArtifactAudio, 50*time.Millisecond)
		gateways[domain.ModuleCampaignWizard] = provider.NewSynthetic(domain.ArtifactScript, 50*time.Millisecond)
		return gateways
	}

	newClient := func(model string) *provider.Client {
		client, err := provider.NewClient(provider.ClientOptions{
			Name:         "vendor",
			APIKey:       cfg.VendorAPIKey,
			BaseURL:      cfg.VendorBaseURL,
			DefaultModel: model,
			Logger:       &logger,
			PollInterval: cfg.VendorPollInterval,
			PollTimeout:  cfg.VendorPollTimeout,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: vendor client init failed")
		}
		return client
	}

	imageClient := newClient(cfg.VendorImageModel)
	videoClient := newClient(cfg.VendorVideoModel)
	audioClient := newClient(cfg.VendorAudioModel)
	scriptClient := newClient(cfg.VendorScriptModel)

	gateways[domain.ModuleTextToImage] = provider.NewTaskGateway(imageClient, "image", domain.ArtifactImage)
	gateways[domain.ModuleTextToVideo] = provider.NewTaskGateway(videoClient, "video", domain.ArtifactVideo)
	gateways[domain.ModuleImageToVideo] = provider.NewTaskGateway(videoClient, "video", domain.ArtifactVideo)
	gateways[domain.ModuleTextToAudio] = provider.NewTaskGateway(audioClient, "audio", domain.ArtifactAudio)
	gateways[domain.ModuleCampaignWizard] = provider.NewTaskGateway(scriptClient, "script", domain.ArtifactScript)
	return gateways
}
