package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"klimatik/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	JWT        JWTConfig        `yaml:"jwt"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Booking    BookingConfig    `yaml:"booking"`
	Backup     BackupConfig     `yaml:"backup"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
	Geocoder   GeocoderConfig   `yaml:"geocoder"`
	Managers   []int64          `yaml:"managers"`
	Blacklist  []int64          `yaml:"blacklist"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	HeaderAPIKey string         `yaml:"header_api_key"`
	AdminKeys    []APIClientKey `yaml:"admin_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Enabled  bool   `yaml:"enabled"`
	Debug    bool   `yaml:"debug"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type BookingConfig struct {
	DraftTTL        time.Duration `yaml:"draft_ttl"`
	LocationTimeout time.Duration `yaml:"location_timeout"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type GoogleConfig struct {
	CredentialsFile     string `yaml:"credentials_file"`
	OrdersSpreadsheetID string `yaml:"orders_spreadsheet_id"`
}

type GeocoderConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
}

// Load читает YAML-конфиг, предварительно подставляя переменные окружения.
// .env подхватывается, если присутствует рядом с бинарником.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.JWT.Secret == "" || c.JWT.Secret == "CHANGE_ME" {
		return errors.New("jwt secret is required")
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when telegram is enabled")
	}

	return nil
}

// ValidateCatalog проверяет позиции каталога перед синхронизацией в БД.
func ValidateCatalog(items []models.CatalogItem) error {
	seen := make(map[int64]bool)
	for _, item := range items {
		if item.ID == 0 {
			return fmt.Errorf("catalog item '%s' has invalid ID 0", item.Name)
		}
		if seen[item.ID] {
			return fmt.Errorf("duplicate catalog item ID found: %d", item.ID)
		}
		if item.Kind != models.KindRental && item.Kind != models.KindService {
			return fmt.Errorf("catalog item %d has unknown kind %q", item.ID, item.Kind)
		}
		seen[item.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = float64(models.RateLimitRequests) / models.RateLimitWindow
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 5
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTTL == 0 {
		c.JWT.RefreshTTL = 720 * time.Hour
	}
	if c.Booking.DraftTTL == 0 {
		c.Booking.DraftTTL = models.DefaultDraftTTL * time.Second
	}
	if c.Booking.LocationTimeout == 0 {
		c.Booking.LocationTimeout = 5 * time.Second
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Geocoder.BaseURL == "" {
		c.Geocoder.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if c.Geocoder.UserAgent == "" {
		c.Geocoder.UserAgent = "klimatik/1.0"
	}
}
