// application/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"k8s.io/utils/clock"

	"crypto-weather-sync/application/services/orchestrator"
	"crypto-weather-sync/internal/delivery/statusapi"
	"crypto-weather-sync/internal/infrastructure/api/coingecko"
	"crypto-weather-sync/internal/infrastructure/api/cryptocompare"
	"crypto-weather-sync/internal/infrastructure/api/openweather"
	"crypto-weather-sync/internal/infrastructure/api/upstream"
	"crypto-weather-sync/internal/infrastructure/cache/redis"
	"crypto-weather-sync/internal/infrastructure/cache/upstreamcache"
	"crypto-weather-sync/internal/infrastructure/config"
	"crypto-weather-sync/internal/infrastructure/metrics"
	storage "crypto-weather-sync/internal/infrastructure/persistence/in_memory_storage"
	"crypto-weather-sync/internal/infrastructure/persistence/postgres"
	"crypto-weather-sync/internal/infrastructure/persistence/postgres/repository/favorites"
	"crypto-weather-sync/internal/infrastructure/transport/push"
	"crypto-weather-sync/internal/types"
	"crypto-weather-sync/pkg/logger"
)

// Application - собранный процесс синхронизации
type Application struct {
	config *config.Config

	// Переопределения из AppBuilder
	channel   push.Channel
	favorites types.FavoritesProvider
	clock     clock.WithTickerAndDelayedExecution

	metrics  *metrics.Metrics
	redis    *redis.RedisService
	db       *sqlx.DB
	store    *storage.SnapshotStore
	coins    *coingecko.Source
	weather  *openweather.Source
	news     *cryptocompare.Source
	lazy     *orchestrator.Lazy
	server   *statusapi.Server
	lease    *orchestrator.ViewLease
	initDone bool

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// NewApplication создает приложение без инициализации компонентов
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("конфигурация не задана")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Application{config: cfg}, nil
}

// Initialize создает инфраструктуру. Недоступные Redis и PostgreSQL не фатальны:
// кэш работает без зеркала, избранное берется из конфигурации.
func (app *Application) Initialize(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.initDone {
		return nil
	}
	cfg := app.config

	logger.Info("🔧 Инициализация компонентов...")
	app.metrics = metrics.New()

	client := upstream.NewClient(upstream.ClientConfig{
		Timeout:         cfg.Upstream.Timeout,
		RequestInterval: cfg.Upstream.RequestInterval,
		UserAgent:       cfg.Upstream.UserAgent,
		Metrics:         app.metrics,
	})

	// 1. Зеркало кэша в Redis
	var mirror upstreamcache.EntryStore
	if cfg.Redis.Enabled {
		app.redis = redis.NewRedisService(cfg.Redis)
		if err := app.redis.Start(ctx); err != nil {
			logger.Warn("⚠️ Redis недоступен, кэш работает только в памяти: %v", err)
			app.redis = nil
		} else {
			mirror = app.redis.GetCache()
		}
	}

	retry := upstreamcache.RetryPolicy{
		Attempts:  cfg.Sync.RetryAttempts,
		BaseDelay: cfg.Sync.RetryBaseDelay,
	}
	newCache := func(name string) *upstreamcache.Cache {
		return upstreamcache.New(upstreamcache.Options{
			Name:    name,
			Retry:   retry,
			Store:   mirror,
			Metrics: app.metrics,
		})
	}

	// 2. Источники REST
	app.coins = coingecko.NewSource(client, newCache("coingecko"), coingecko.Config{
		BaseURL:    cfg.Upstream.CoinGeckoURL,
		PriceTTL:   cfg.Sync.CacheTTL,
		HistoryTTL: cfg.Sync.HistoryCacheTTL,
	})
	app.weather = openweather.NewSource(client, newCache("openweather"), openweather.Config{
		BaseURL: cfg.Upstream.OpenWeatherURL,
		APIKey:  cfg.Upstream.OpenWeatherAPIKey,
		TTL:     cfg.Sync.WeatherCacheTTL,
	})
	app.news = cryptocompare.NewSource(client, newCache("cryptocompare"), cryptocompare.Config{
		BaseURL: cfg.Upstream.CryptoCompareURL,
		TTL:     cfg.Upstream.NewsCacheTTL,
	})

	// 3. Избранные города
	if app.favorites == nil {
		app.favorites = app.initFavorites(ctx)
	}

	// 4. Приемники обновлений
	app.store = storage.NewSnapshotStore()
	sink := types.MultiSink{app.store, storage.LogSink{}}

	if app.channel == nil {
		app.channel = push.NewWebSocketChannel(cfg.Push.DialTimeout)
	}

	// 5. Оркестратор создается один раз, при первом обращении
	settings := orchestrator.Settings{
		Sync:         cfg.Sync,
		PushURL:      cfg.Push.URL,
		TrackedCoins: cfg.Push.TrackedCoins,
	}
	deps := orchestrator.Deps{
		Prices:    app.coins,
		Weather:   app.weather,
		Favorites: app.favorites,
		Channel:   app.channel,
		Sink:      sink,
		Clock:     app.clock,
		Metrics:   app.metrics,
	}
	app.lazy = orchestrator.NewLazy(func() (*orchestrator.SyncOrchestrator, *orchestrator.Teardown) {
		return orchestrator.New(settings, deps)
	})

	// 6. HTTP статус
	if cfg.HTTP.Enabled {
		app.server = statusapi.NewServer(cfg.HTTP.Addr, statusapi.Deps{
			Status:  app.lazy.Get(),
			Store:   app.store,
			History: app.coins,
			News:    app.news,
			Metrics: app.metrics,
			Checks:  app.healthChecks(),
			Stats:   app.componentStats(),
		})
	}

	app.initDone = true
	logger.Info("✅ Компоненты инициализированы")
	return nil
}

// initFavorites подключает PostgreSQL или возвращает список из конфигурации
func (app *Application) initFavorites(ctx context.Context) types.FavoritesProvider {
	cfg := app.config
	fallback := types.StaticFavorites(cfg.FavoriteCities)

	if !cfg.Database.Enabled {
		return fallback
	}

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Warn("⚠️ PostgreSQL недоступен, избранное из конфигурации: %v", err)
		return fallback
	}
	app.db = db

	repo := favorites.NewFavoritesRepository(db)
	if len(cfg.FavoriteCities) > 0 {
		n, err := repo.SeedIfEmpty(ctx, cfg.FavoriteCities)
		if err != nil {
			logger.Warn("⚠️ Не удалось заполнить избранное: %v", err)
		} else if n > 0 {
			logger.Info("🏙️ Избранное заполнено из конфигурации: %d городов", n)
		}
	}
	return repo
}

func (app *Application) healthChecks() map[string]statusapi.HealthCheck {
	checks := make(map[string]statusapi.HealthCheck)
	if app.redis != nil {
		checks["redis"] = app.redis.HealthCheck
	}
	if app.db != nil {
		db := app.db
		checks["postgres"] = func(ctx context.Context) bool {
			return db.PingContext(ctx) == nil
		}
	}
	return checks
}

func (app *Application) componentStats() map[string]statusapi.StatsFunc {
	stats := make(map[string]statusapi.StatsFunc)
	if app.redis != nil {
		stats["redis"] = app.redis.GetStats
	}
	if app.db != nil {
		db := app.db
		stats["postgres"] = func() map[string]interface{} {
			s := db.Stats()
			return map[string]interface{}{
				"open_connections": s.OpenConnections,
				"in_use":           s.InUse,
				"idle":             s.Idle,
				"wait_count":       s.WaitCount,
			}
		}
	}
	return stats
}

// Run подключает оркестратор и запускает HTTP-сервер
func (app *Application) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return fmt.Errorf("инициализация приложения: %w", err)
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if app.running {
		return errors.New("приложение уже запущено")
	}

	// Процесс - первое представление; соединение переживает его
	app.lease = app.lazy.Get().Attach()

	if app.server != nil {
		if err := app.server.Start(); err != nil {
			return fmt.Errorf("запуск HTTP-сервера: %w", err)
		}
	}

	app.running = true
	app.startTime = time.Now()
	logger.Info("✅ Приложение запущено")
	return nil
}

// Stop останавливает все компоненты. Только здесь вызывается Teardown.
func (app *Application) Stop(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if !app.running {
		return nil
	}
	logger.Info("🛑 Останавливаем приложение...")

	var errs []error
	if app.lease != nil {
		app.lease.Release()
	}
	if app.server != nil {
		if err := app.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP-сервер: %w", err))
		}
	}

	app.lazy.Teardown().Disconnect()

	if app.redis != nil {
		if err := app.redis.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}

	app.running = false
	logger.Info("✅ Приложение остановлено. Время работы: %v", time.Since(app.startTime).Round(time.Second))
	return errors.Join(errs...)
}

// IsRunning возвращает true после Run и до Stop
func (app *Application) IsRunning() bool {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.running
}

// Store возвращает хранилище снапшотов
func (app *Application) Store() *storage.SnapshotStore {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.store
}

// Orchestrator возвращает единственный оркестратор процесса
func (app *Application) Orchestrator() *orchestrator.SyncOrchestrator {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.lazy == nil {
		return nil
	}
	return app.lazy.Get()
}

// Server возвращает HTTP-сервер статуса (nil, если выключен)
func (app *Application) Server() *statusapi.Server {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.server
}
