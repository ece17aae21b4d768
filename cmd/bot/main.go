package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"klimatik/internal/api"
	"klimatik/internal/booking"
	"klimatik/internal/bot"
	"klimatik/internal/config"
	"klimatik/internal/database"
	"klimatik/internal/domain"
	"klimatik/internal/events"
	"klimatik/internal/export"
	"klimatik/internal/geo"
	"klimatik/internal/google"
	"klimatik/internal/logging"
	"klimatik/internal/models"
	"klimatik/internal/repository"
	"klimatik/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

// run поднимает весь стек одним процессом: бот, HTTP API, воркер
// синхронизации и бэкапы. Шина событий внутрипроцессная, поэтому заказы
// из API сразу видны менеджерам в телеграме.
func run() error {
	cfg, catalog, logger, closer, loadErr := loadConfigAndCatalog()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
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
		retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
		sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, retryPolicy, &logger)
		go sheetsWorker.Start(ctx)
		syncWorker = sheetsWorker
	}

	var locator domain.LocationResolver
	if cfg.Geocoder.Enabled {
		locator = geo.NewNominatimResolver(cfg.Geocoder, &logger)
	}

	bookingService := booking.NewService(db, drafts, locator, bus, syncWorker, cfg.Booking.LocationTimeout, &logger)
	exporter := export.NewExporter(db, cfg.Exports.Path, &logger)

	apiServer := api.NewHTTPServer(cfg, db, bookingService, drafts, exporter, bus, &logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = apiServer.Shutdown(shutdownCtx)
	}()

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	return startBot(ctx, cfg, db, bookingService, exporter, sheetsService, bus, &logger)
}

func loadConfigAndCatalog() (*config.Config, []models.CatalogItem, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = "configs/catalog.yaml"
	}
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		logger.Error().Err(err).Msgf("Ошибка чтения %s", catalogPath)
		return nil, nil, zerolog.Logger{}, closer, err
	}

	var catalogConfig struct {
		Items []models.CatalogItem `yaml:"items"`
	}
	if err := yaml.Unmarshal(data, &catalogConfig); err != nil {
		logger.Error().Err(err).Msg("Ошибка парсинга catalog.yaml")
		return nil, nil, zerolog.Logger{}, closer, err
	}

	if err := config.ValidateCatalog(catalogConfig.Items); err != nil {
		logger.Error().Err(err).Msg("Catalog validation failed")
		return nil, nil, zerolog.Logger{}, closer, err
	}

	return cfg, catalogConfig.Items, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}
	return nil
}

func initDatabase(cfg *config.Config, catalog []models.CatalogItem, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return nil, err
	}

	if err := db.SyncCatalog(context.Background(), catalog); err != nil {
		logger.Error().Err(err).Msg("Ошибка синхронизации каталога")
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, falling back to memory drafts")
		redisClient.Close()
		return nil
	}
	return redisClient
}

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
		logger.Info().Msg("Google Sheets не настроен, синхронизация выключена")
		return nil
	}

	sheetsService, err := google.NewSheetsService(cfg.Google.CredentialsFile, cfg.Google.OrdersSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Google Sheets service")
		return nil
	}

	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("Google Sheets connection test failed")
		return nil
	}

	logger.Info().Msg("Google Sheets service initialized successfully")
	return sheetsService
}

func startBot(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	bookingService *booking.Service,
	exporter *export.Exporter,
	sheetsService *google.SheetsService,
	bus *events.EventBus,
	logger *zerolog.Logger,
) error {
	if !cfg.Telegram.Enabled {
		logger.Info().Msg("Телеграм-бот выключен, работаем только как API")
		<-ctx.Done()
		return nil
	}
	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Error().Msg("Задайте токен бота в config.yaml")
		return os.ErrInvalid
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return fmt.Errorf("create bot api: %w", err)
	}
	botAPI.Debug = cfg.Telegram.Debug

	var mirror bot.SheetsMirror
	if sheetsService != nil {
		mirror = sheetsService
	}

	telegramBot := bot.NewBot(bot.NewBotWrapper(botAPI), cfg, db, bookingService, exporter, mirror, bus, logger)

	logger.Info().Msg("Бот запущен...")
	telegramBot.Start(ctx)
	telegramBot.Stop()

	logger.Info().Msg("Shutdown complete.")
	return nil
}
