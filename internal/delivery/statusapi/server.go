// internal/delivery/statusapi/server.go
package statusapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"crypto-weather-sync/application/services/orchestrator"
	"crypto-weather-sync/internal/infrastructure/api/coingecko"
	"crypto-weather-sync/internal/infrastructure/api/cryptocompare"
	"crypto-weather-sync/internal/infrastructure/metrics"
	storage "crypto-weather-sync/internal/infrastructure/persistence/in_memory_storage"
	"crypto-weather-sync/internal/types"
	"crypto-weather-sync/pkg/logger"
)

// StatusProvider - источник состояния слоя синхронизации
type StatusProvider interface {
	Status() orchestrator.Status
}

// Store - хранилище снапшотов, которое читает сервер
type Store interface {
	GetAllPrices() map[string]float64
	GetCoin(id string) (storage.CoinState, error)
	GetAllWeather() []types.WeatherSnapshot
	GetWeather(city string) (types.WeatherSnapshot, error)
	RecentNotifications(limit int) []storage.StoredNotification
	TerminalFailure() (string, bool)
	GetStats() storage.StorageStats
	Subscribe(id string, subscriber storage.Subscriber) func()
}

// HistorySource - история цен монеты
type HistorySource interface {
	History(ctx context.Context, id string, days int) (coingecko.MarketChart, bool, error)
}

// NewsSource - лента новостей
type NewsSource interface {
	Latest(ctx context.Context) (cryptocompare.NewsResult, error)
}

// HealthCheck - проверка внешней зависимости (Redis, PostgreSQL)
type HealthCheck func(ctx context.Context) bool

// StatsFunc - статистика компонента для /api/status
type StatsFunc func() map[string]interface{}

// Deps - зависимости сервера
type Deps struct {
	Status  StatusProvider
	Store   Store
	History HistorySource
	News    NewsSource
	Metrics *metrics.Metrics
	Checks  map[string]HealthCheck
	Stats   map[string]StatsFunc
}

// Server - HTTP-сервер статуса
type Server struct {
	addr   string
	router *chi.Mux
	srv    *http.Server

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewServer создает сервер и регистрирует маршруты
func NewServer(addr string, deps Deps) *Server {
	return &Server{
		addr:   addr,
		router: NewRouter(deps),
	}
}

// NewRouter собирает маршруты
func NewRouter(deps Deps) *chi.Mux {
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware)

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/prices", h.prices)
		r.Get("/prices/{id}", h.coin)
		r.Get("/history/{id}", h.history)
		r.Get("/news", h.news)
		r.Get("/weather", h.weather)
		r.Get("/weather/{city}", h.city)
		r.Get("/notifications", h.notifications)
		r.Get("/stream", h.stream)
	})

	return r
}

// Handler возвращает маршрутизатор (для тестов и встраивания)
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start запускает сервер в фоне
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.done = make(chan struct{})
	s.running = true

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		logger.Info("🌐 HTTP статус-сервер слушает %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("❌ HTTP статус-сервер: %v", err)
		}
	}(s.srv, s.done)

	return nil
}

// Stop останавливает сервер, дожидаясь активных запросов
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv, done := s.srv, s.done
	s.mu.Unlock()

	err := srv.Shutdown(ctx)
	<-done
	logger.Info("🛑 HTTP статус-сервер остановлен")
	return err
}

// LoggingMiddleware логирует HTTP-запросы
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("🌐 HTTP %s %s %d %s %s",
			r.Method,
			r.URL.Path,
			ww.Status(),
			time.Since(start),
			middleware.GetReqID(r.Context()),
		)
	})
}
