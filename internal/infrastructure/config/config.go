// /internal/infrastructure/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"crypto-weather-sync/pkg/logger"
)

// ============================================
// КОНФИГУРАЦИЯ СИНХРОНИЗАЦИИ
// ============================================

// SyncConfig - параметры слоя синхронизации живых данных.
// В JSON длительности передаются миллисекундами (см. MarshalJSON).
type SyncConfig struct {
	CacheTTL                time.Duration `json:"cacheTtlMs" mapstructure:"CACHE_TTL"`
	WeatherCacheTTL         time.Duration `json:"weatherCacheTtlMs" mapstructure:"WEATHER_CACHE_TTL"`
	HistoryCacheTTL         time.Duration `json:"historyCacheTtlMs" mapstructure:"HISTORY_CACHE_TTL"`
	BackoffBase             time.Duration `json:"backoffBaseMs" mapstructure:"BACKOFF_BASE"`
	MaxReconnectAttempts    int           `json:"maxReconnectAttempts" mapstructure:"MAX_RECONNECT_ATTEMPTS"`
	PriceChangeThresholdPct float64       `json:"priceChangeThresholdPct" mapstructure:"PRICE_CHANGE_THRESHOLD_PCT"`
	WeatherTempThresholdC   float64       `json:"weatherTempThresholdC" mapstructure:"WEATHER_TEMP_THRESHOLD_C"`
	PollInterval            time.Duration `json:"pollIntervalMs" mapstructure:"POLL_INTERVAL"`

	// Повторы REST-запросов внутри кэша
	RetryAttempts  int           `json:"retryAttempts" mapstructure:"RETRY_ATTEMPTS"`
	RetryBaseDelay time.Duration `json:"retryBaseDelayMs" mapstructure:"RETRY_BASE_DELAY"`
}

// DefaultSyncConfig возвращает значения эталонного поведения
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		CacheTTL:                30 * time.Second,
		WeatherCacheTTL:         5 * time.Minute,
		HistoryCacheTTL:         5 * time.Minute,
		BackoffBase:             5 * time.Second,
		MaxReconnectAttempts:    5,
		PriceChangeThresholdPct: 1.0,
		WeatherTempThresholdC:   5.0,
		PollInterval:            5 * time.Minute,
		RetryAttempts:           3,
		RetryBaseDelay:          2 * time.Second,
	}
}

// syncConfigJSON - SyncConfig в JSON: длительности в миллисекундах
type syncConfigJSON struct {
	CacheTTLMs              int64   `json:"cacheTtlMs"`
	WeatherCacheTTLMs       int64   `json:"weatherCacheTtlMs"`
	HistoryCacheTTLMs       int64   `json:"historyCacheTtlMs"`
	BackoffBaseMs           int64   `json:"backoffBaseMs"`
	MaxReconnectAttempts    int     `json:"maxReconnectAttempts"`
	PriceChangeThresholdPct float64 `json:"priceChangeThresholdPct"`
	WeatherTempThresholdC   float64 `json:"weatherTempThresholdC"`
	PollIntervalMs          int64   `json:"pollIntervalMs"`
	RetryAttempts           int     `json:"retryAttempts"`
	RetryBaseDelayMs        int64   `json:"retryBaseDelayMs"`
}

// MarshalJSON пишет длительности целыми миллисекундами
func (s SyncConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(syncConfigJSON{
		CacheTTLMs:              s.CacheTTL.Milliseconds(),
		WeatherCacheTTLMs:       s.WeatherCacheTTL.Milliseconds(),
		HistoryCacheTTLMs:       s.HistoryCacheTTL.Milliseconds(),
		BackoffBaseMs:           s.BackoffBase.Milliseconds(),
		MaxReconnectAttempts:    s.MaxReconnectAttempts,
		PriceChangeThresholdPct: s.PriceChangeThresholdPct,
		WeatherTempThresholdC:   s.WeatherTempThresholdC,
		PollIntervalMs:          s.PollInterval.Milliseconds(),
		RetryAttempts:           s.RetryAttempts,
		RetryBaseDelayMs:        s.RetryBaseDelay.Milliseconds(),
	})
}

// UnmarshalJSON читает миллисекунды; отсутствующие поля остаются как были
func (s *SyncConfig) UnmarshalJSON(data []byte) error {
	in := syncConfigJSON{
		CacheTTLMs:              s.CacheTTL.Milliseconds(),
		WeatherCacheTTLMs:       s.WeatherCacheTTL.Milliseconds(),
		HistoryCacheTTLMs:       s.HistoryCacheTTL.Milliseconds(),
		BackoffBaseMs:           s.BackoffBase.Milliseconds(),
		MaxReconnectAttempts:    s.MaxReconnectAttempts,
		PriceChangeThresholdPct: s.PriceChangeThresholdPct,
		WeatherTempThresholdC:   s.WeatherTempThresholdC,
		PollIntervalMs:          s.PollInterval.Milliseconds(),
		RetryAttempts:           s.RetryAttempts,
		RetryBaseDelayMs:        s.RetryBaseDelay.Milliseconds(),
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	s.CacheTTL = time.Duration(in.CacheTTLMs) * time.Millisecond
	s.WeatherCacheTTL = time.Duration(in.WeatherCacheTTLMs) * time.Millisecond
	s.HistoryCacheTTL = time.Duration(in.HistoryCacheTTLMs) * time.Millisecond
	s.BackoffBase = time.Duration(in.BackoffBaseMs) * time.Millisecond
	s.MaxReconnectAttempts = in.MaxReconnectAttempts
	s.PriceChangeThresholdPct = in.PriceChangeThresholdPct
	s.WeatherTempThresholdC = in.WeatherTempThresholdC
	s.PollInterval = time.Duration(in.PollIntervalMs) * time.Millisecond
	s.RetryAttempts = in.RetryAttempts
	s.RetryBaseDelay = time.Duration(in.RetryBaseDelayMs) * time.Millisecond
	return nil
}

// UpstreamConfig - внешние REST API
type UpstreamConfig struct {
	CoinGeckoURL      string        `mapstructure:"COINGECKO_URL"`
	OpenWeatherURL    string        `mapstructure:"OPENWEATHER_URL"`
	OpenWeatherAPIKey string        `mapstructure:"OPENWEATHER_API_KEY"`
	CryptoCompareURL  string        `mapstructure:"CRYPTOCOMPARE_URL"`
	NewsCacheTTL      time.Duration `mapstructure:"NEWS_CACHE_TTL"`
	RequestInterval   time.Duration `mapstructure:"UPSTREAM_REQUEST_INTERVAL"`
	Timeout           time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`
	UserAgent         string        `mapstructure:"UPSTREAM_USER_AGENT"`
}

// PushConfig - push-канал цен
type PushConfig struct {
	URL          string   `mapstructure:"PUSH_URL"`
	TrackedCoins []string `mapstructure:"TRACKED_COINS"`
	DialTimeout  time.Duration
}

// RedisConfig конфигурация Redis (зеркало кэша)
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	Enabled  bool   `mapstructure:"REDIS_ENABLED"`

	PoolSize     int           `mapstructure:"REDIS_POOL_SIZE"`
	MinIdleConns int           `mapstructure:"REDIS_MIN_IDLE_CONNS"`
	MaxRetries   int           `mapstructure:"REDIS_MAX_RETRIES"`
	DialTimeout  time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `mapstructure:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"REDIS_WRITE_TIMEOUT"`

	// Сколько хранить зеркало записи (запасное значение после рестарта)
	EntryRetention time.Duration `mapstructure:"REDIS_ENTRY_RETENTION"`
	KeyPrefix      string        `mapstructure:"REDIS_KEY_PREFIX"`
}

// DatabaseConfig - PostgreSQL с избранными городами
type DatabaseConfig struct {
	Host     string `mapstructure:"DB_HOST"`
	Port     int    `mapstructure:"DB_PORT"`
	User     string `mapstructure:"DB_USER"`
	Password string `mapstructure:"DB_PASSWORD"`
	Name     string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"DB_SSLMODE"`
	Enabled  bool   `mapstructure:"DB_ENABLED"`

	MaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	MaxConnLifetime time.Duration `mapstructure:"DB_MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `mapstructure:"DB_MAX_CONN_IDLE_TIME"`
}

// HTTPConfig - сервер статуса
type HTTPConfig struct {
	Enabled bool   `mapstructure:"HTTP_ENABLED"`
	Addr    string `mapstructure:"HTTP_ADDR"`
}

// LoggingConfig - логирование
type LoggingConfig struct {
	Level string `mapstructure:"LOG_LEVEL"`
	File  string `mapstructure:"LOG_FILE"`
	Debug bool   `mapstructure:"DEBUG"`
}

// ============================================
// ОСНОВНАЯ КОНФИГУРАЦИЯ
// ============================================

// Config - основная структура конфигурации
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Version     string `mapstructure:"VERSION"`

	Sync     SyncConfig
	Upstream UpstreamConfig
	Push     PushConfig
	Redis    RedisConfig
	Database DatabaseConfig
	HTTP     HTTPConfig
	Logging  LoggingConfig

	// Запасной список городов, если БД с избранным отключена
	FavoriteCities []string `mapstructure:"FAVORITE_CITIES"`
}

// ============================================
// ЗАГРУЗКА КОНФИГУРАЦИИ
// ============================================

// LoadConfig загружает конфигурацию из .env файла и переменных окружения
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			logger.Warn("⚠️  Config file %s not found, using environment variables", path)
		}
	}

	cfg := &Config{}

	cfg.Environment = getEnv("ENVIRONMENT", "production")
	cfg.Version = getEnv("VERSION", "1.0.0")

	// ======================
	// СИНХРОНИЗАЦИЯ
	// ======================
	def := DefaultSyncConfig()
	cfg.Sync.CacheTTL = getEnvMillis("CACHE_TTL_MS", def.CacheTTL)
	cfg.Sync.WeatherCacheTTL = getEnvMillis("WEATHER_CACHE_TTL_MS", def.WeatherCacheTTL)
	cfg.Sync.HistoryCacheTTL = getEnvMillis("HISTORY_CACHE_TTL_MS", def.HistoryCacheTTL)
	cfg.Sync.BackoffBase = getEnvMillis("BACKOFF_BASE_MS", def.BackoffBase)
	cfg.Sync.MaxReconnectAttempts = getEnvInt("MAX_RECONNECT_ATTEMPTS", def.MaxReconnectAttempts)
	cfg.Sync.PriceChangeThresholdPct = getEnvFloat("PRICE_CHANGE_THRESHOLD_PCT", def.PriceChangeThresholdPct)
	cfg.Sync.WeatherTempThresholdC = getEnvFloat("WEATHER_TEMP_THRESHOLD_C", def.WeatherTempThresholdC)
	cfg.Sync.PollInterval = getEnvMillis("POLL_INTERVAL_MS", def.PollInterval)
	cfg.Sync.RetryAttempts = getEnvInt("RETRY_ATTEMPTS", def.RetryAttempts)
	cfg.Sync.RetryBaseDelay = getEnvMillis("RETRY_BASE_DELAY_MS", def.RetryBaseDelay)

	// ======================
	// ВНЕШНИЕ API
	// ======================
	cfg.Upstream.CoinGeckoURL = strings.TrimRight(getEnv("COINGECKO_URL", "https://api.coingecko.com/api/v3"), "/")
	cfg.Upstream.OpenWeatherURL = strings.TrimRight(getEnv("OPENWEATHER_URL", "https://api.openweathermap.org/data/2.5"), "/")
	cfg.Upstream.OpenWeatherAPIKey = getEnv("OPENWEATHER_API_KEY", "")
	cfg.Upstream.CryptoCompareURL = strings.TrimRight(getEnv("CRYPTOCOMPARE_URL", "https://min-api.cryptocompare.com/data/v2"), "/")
	cfg.Upstream.NewsCacheTTL = getEnvMillis("NEWS_CACHE_TTL_MS", 5*time.Minute)
	cfg.Upstream.RequestInterval = getEnvDuration("UPSTREAM_REQUEST_INTERVAL", 2*time.Second)
	cfg.Upstream.Timeout = getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	cfg.Upstream.UserAgent = getEnv("UPSTREAM_USER_AGENT", "CryptoWeatherSync/1.0")

	// ======================
	// PUSH-КАНАЛ
	// ======================
	cfg.Push.TrackedCoins = parseList(getEnv("TRACKED_COINS", "bitcoin,ethereum"))
	cfg.Push.URL = getEnv("PUSH_URL", "wss://ws.coincap.io/prices?assets="+strings.Join(cfg.Push.TrackedCoins, ","))
	cfg.Push.DialTimeout = getEnvDuration("PUSH_DIAL_TIMEOUT", 10*time.Second)

	// ======================
	// REDIS
	// ======================
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnvInt("REDIS_PORT", 6379)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", 10)
	cfg.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", 2)
	cfg.Redis.MaxRetries = getEnvInt("REDIS_MAX_RETRIES", 3)
	cfg.Redis.DialTimeout = getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	cfg.Redis.ReadTimeout = getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second)
	cfg.Redis.WriteTimeout = getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second)
	cfg.Redis.EntryRetention = getEnvDuration("REDIS_ENTRY_RETENTION", 24*time.Hour)
	cfg.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", "cwsync:")

	// ======================
	// БАЗА ДАННЫХ
	// ======================
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "")
	cfg.Database.Password = getEnv("DB_PASSWORD", "")
	cfg.Database.Name = getEnv("DB_NAME", "")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.Enabled = getEnvBool("DB_ENABLED", false)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.Database.MaxConnLifetime = getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	cfg.Database.MaxConnIdleTime = getEnvDuration("DB_MAX_CONN_IDLE_TIME", 10*time.Minute)

	// ======================
	// HTTP И ЛОГИ
	// ======================
	cfg.HTTP.Enabled = getEnvBool("HTTP_ENABLED", true)
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")
	cfg.Logging.File = getEnv("LOG_FILE", "")
	cfg.Logging.Debug = getEnvBool("DEBUG", false)

	cfg.FavoriteCities = parseList(getEnv("FAVORITE_CITIES", ""))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ============================================
// ВАЛИДАЦИЯ
// ============================================

// validate проверяет обязательные параметры конфигурации
func (c *Config) validate() error {
	var validationErrors []string

	if c.Sync.CacheTTL <= 0 {
		validationErrors = append(validationErrors, "CACHE_TTL_MS must be positive")
	}
	if c.Sync.WeatherCacheTTL <= 0 {
		validationErrors = append(validationErrors, "WEATHER_CACHE_TTL_MS must be positive")
	}
	if c.Sync.BackoffBase <= 0 {
		validationErrors = append(validationErrors, "BACKOFF_BASE_MS must be positive")
	}
	if c.Sync.MaxReconnectAttempts < 1 {
		validationErrors = append(validationErrors, "MAX_RECONNECT_ATTEMPTS must be at least 1")
	}
	if c.Sync.RetryAttempts < 1 {
		validationErrors = append(validationErrors, "RETRY_ATTEMPTS must be at least 1")
	}
	if c.Sync.PriceChangeThresholdPct <= 0 {
		validationErrors = append(validationErrors, "PRICE_CHANGE_THRESHOLD_PCT must be positive")
	}
	if c.Sync.WeatherTempThresholdC <= 0 {
		validationErrors = append(validationErrors, "WEATHER_TEMP_THRESHOLD_C must be positive")
	}
	if c.Sync.PollInterval <= 0 {
		validationErrors = append(validationErrors, "POLL_INTERVAL_MS must be positive")
	}

	if c.Push.URL == "" {
		validationErrors = append(validationErrors, "PUSH_URL is required")
	}
	if len(c.Push.TrackedCoins) == 0 {
		validationErrors = append(validationErrors, "TRACKED_COINS must list at least one coin id")
	}

	if c.Database.Enabled {
		if c.Database.User == "" {
			validationErrors = append(validationErrors, "DB_USER is required when DB_ENABLED")
		}
		if c.Database.Name == "" {
			validationErrors = append(validationErrors, "DB_NAME is required when DB_ENABLED")
		}
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("%s", strings.Join(validationErrors, "; "))
	}

	return nil
}

// Validate проверяет конфигурацию, собранную вручную
func (c *Config) Validate() error {
	return c.validate()
}

// ============================================
// ВСПОМОГАТЕЛЬНЫЕ МЕТОДЫ
// ============================================

// GetPostgresDSN возвращает DSN для подключения к PostgreSQL
func (c *Config) GetPostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddress возвращает адрес Redis
func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// IsDev возвращает true для dev-окружения
func (c *Config) IsDev() bool {
	return c.Environment == "dev" || c.Environment == "development"
}

// PrintSummary выводит основные параметры конфигурации
func (c *Config) PrintSummary() {
	logger.Info("📋 Конфигурация синхронизации:")
	logger.Info("   • Окружение: %s", c.Environment)
	logger.Info("   • Push-канал: %s", c.Push.URL)
	logger.Info("   • Монеты: %s", strings.Join(c.Push.TrackedCoins, ","))
	logger.Info("   • TTL кэша цен: %v, погоды: %v", c.Sync.CacheTTL, c.Sync.WeatherCacheTTL)
	logger.Info("   • Backoff: %v × попытка, максимум %d попыток", c.Sync.BackoffBase, c.Sync.MaxReconnectAttempts)
	logger.Info("   • Повторы REST: %d, базовая задержка %v", c.Sync.RetryAttempts, c.Sync.RetryBaseDelay)
	logger.Info("   • Пороги: цена %.2f%%, температура %.1f°C", c.Sync.PriceChangeThresholdPct, c.Sync.WeatherTempThresholdC)
	logger.Info("   • Опрос погоды: каждые %v", c.Sync.PollInterval)
	logger.Info("   • TTL новостей: %v", c.Upstream.NewsCacheTTL)
	logger.Info("   • Redis: %v (%s, DB: %d)", c.Redis.Enabled, c.GetRedisAddress(), c.Redis.DB)
	logger.Info("   • PostgreSQL: %v (%s:%d/%s)", c.Database.Enabled, c.Database.Host, c.Database.Port, c.Database.Name)
	logger.Info("   • HTTP статус: %v (%s)", c.HTTP.Enabled, c.HTTP.Addr)

	if c.Upstream.OpenWeatherAPIKey == "" {
		logger.Warn("   • OpenWeather API key не задан, опрос погоды будет возвращать ошибки")
	}
}

// ============================================
// ВСПОМОГАТЕЛЬНЫЕ ФУНКЦИИ
// ============================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvMillis читает длительность в миллисекундах (опции *Ms)
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// parseList разбирает список через запятую, сохраняя порядок и убирая пустые элементы
func parseList(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		result = append(result, part)
	}
	return result
}
