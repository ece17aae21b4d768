package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"klimatik/internal/api"
	"klimatik/internal/booking"
	"klimatik/internal/config"
	"klimatik/internal/database"
	"klimatik/internal/domain"
	"klimatik/internal/events"
	"klimatik/internal/export"
	"klimatik/internal/geo"
	"klimatik/internal/google"
	"klimatik/internal/logging"
	"klimatik/internal/metrics"
	"klimatik/internal/models"
	"klimatik/internal/repository"
	"klimatik/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	catalog, err := loadCatalog(&logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, catalog, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	drafts := initDrafts(cfg, redisClient, &logger)
	bus := events.NewEventBus()

	sheetsService := initGoogleSheets(ctx, cfg, &logger)

	var syncWorker domain.SyncWorker
	if sheetsService != nil {
		sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, worker.RetryPolicy{}, &logger)
		go sheetsWorker.Start(ctx)
		syncWorker = sheetsWorker
	}

	var locator domain.LocationResolver
	if cfg.Geocoder.Enabled {
		locator = geo.NewNominatimResolver(cfg.Geocoder, &logger)
	}

	bookingService := booking.NewService(db, drafts, locator, bus, syncWorker, cfg.Booking.LocationTimeout, &logger)
	exporter := export.NewExporter(db, cfg.Exports.Path, &logger)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg, db, bookingService, drafts, exporter, bus, &logger)
	return serve(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadCatalog(logger *zerolog.Logger) ([]models.CatalogItem, error) {
	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = "configs/catalog.yaml"
	}
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("read catalog")
		return nil, err
	}

	var catalogConfig struct {
		Items []models.CatalogItem `yaml:"items"`
	}
	if err := yaml.Unmarshal(data, &catalogConfig); err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("parse catalog")
		return nil, err
	}

	if err := config.ValidateCatalog(catalogConfig.Items); err != nil {
		logger.Error().Err(err).Msg("catalog validation failed")
		return nil, err
	}

	return catalogConfig.Items, nil
}

func initDatabase(cfg *config.Config, catalog []models.CatalogItem, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if err := db.SyncCatalog(context.Background(), catalog); err != nil {
		logger.Error().Err(err).Msg("sync catalog")
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initDrafts собирает хранилище черновиков: redis с памятью в запасе,
// либо чистая память, когда redis не настроен.
func initDrafts(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.DraftRepository {
	memory := repository.NewMemoryDraftRepository(cfg.Booking.DraftTTL)
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisDraftRepository(redisClient, cfg.Booking.DraftTTL)
	return repository.NewFailoverDraftRepository(primary, memory, logger)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.OrdersSpreadsheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(cfg.Google.CredentialsFile, cfg.Google.OrdersSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
