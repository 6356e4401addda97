// application/services/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"crypto-weather-sync/internal/core/domain/notifier"
	"crypto-weather-sync/internal/core/domain/weather"
	"crypto-weather-sync/internal/infrastructure/api/openweather"
	"crypto-weather-sync/internal/infrastructure/api/upstream"
	"crypto-weather-sync/internal/infrastructure/config"
	"crypto-weather-sync/internal/infrastructure/metrics"
	"crypto-weather-sync/internal/infrastructure/transport/push"
	"crypto-weather-sync/internal/types"
	"crypto-weather-sync/pkg/logger"
)

// PriceSource - REST-цены (через кэш апстрима)
type PriceSource interface {
	Prices(ctx context.Context, ids []string) ([]types.PriceSnapshot, bool, error)
}

// Settings - параметры слоя синхронизации
type Settings struct {
	Sync         config.SyncConfig
	PushURL      string
	TrackedCoins []string
}

// Deps - внешние зависимости
type Deps struct {
	Prices    PriceSource
	Weather   weather.Source
	Favorites types.FavoritesProvider
	Channel   push.Channel
	Sink      types.Sink
	Clock     clock.WithTickerAndDelayedExecution
	Metrics   *metrics.Metrics
}

// Status - снимок состояния слоя синхронизации
type Status struct {
	Push          push.Status `json:"push"`
	PollerRunning bool        `json:"poller_running"`
	Views         int         `json:"views"`
	TrackedCoins  []string    `json:"tracked_coins"`
	Uptime        string      `json:"uptime"`
}

// SyncOrchestrator владеет push-менеджером, опросчиком погоды и нотификатором.
// Один на процесс; создается через New (обычно из Lazy).
type SyncOrchestrator struct {
	settings Settings
	prices   PriceSource
	sink     types.Sink
	metrics  *metrics.Metrics
	clock    clock.Clock

	manager  *push.Manager
	poller   *weather.Poller
	notifier *notifier.Notifier

	startedAt time.Time

	mu    sync.Mutex
	views int
}

// New создает оркестратор и ручку Teardown.
// Ручку получает только владелец процесса; представления используют Attach.
func New(settings Settings, deps Deps) (*SyncOrchestrator, *Teardown) {
	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	sink := deps.Sink
	if sink == nil {
		sink = types.MultiSink{}
	}

	o := &SyncOrchestrator{
		settings: settings,
		prices:   deps.Prices,
		sink:     sink,
		metrics:  deps.Metrics,
		clock:    clk,
		notifier: notifier.New(notifier.Thresholds{
			PricePct: settings.Sync.PriceChangeThresholdPct,
			TempC:    settings.Sync.WeatherTempThresholdC,
		}),
		startedAt: clk.Now(),
	}

	o.manager = push.NewManager(push.Config{
		URL:         settings.PushURL,
		BaseDelay:   settings.Sync.BackoffBase,
		MaxAttempts: settings.Sync.MaxReconnectAttempts,
	}, push.Options{
		Channel:    deps.Channel,
		Clock:      clk,
		Refresh:    o.RefreshPrices,
		OnPrices:   o.handlePrices,
		OnTerminal: o.handleTerminal,
		Metrics:    deps.Metrics,
	})

	o.poller = weather.NewPoller(weather.Config{
		Interval: settings.Sync.PollInterval,
	}, weather.Options{
		Source:    deps.Weather,
		Favorites: deps.Favorites,
		OnWeather: o.handleWeather,
		OnError:   o.handleWeatherError,
		Clock:     clk,
		Metrics:   deps.Metrics,
	})

	logger.Info("🧭 SyncOrchestrator: создан (монеты: %v)", settings.TrackedCoins)
	return o, &Teardown{orchestrator: o}
}

// Connect запускает push-канал и опрос погоды. Повторный вызов безопасен.
func (o *SyncOrchestrator) Connect() {
	o.manager.Connect()
	o.poller.Start()
}

// Attach регистрирует представление. Lease.Release не рвет соединение.
func (o *SyncOrchestrator) Attach() *ViewLease {
	o.mu.Lock()
	o.views++
	views := o.views
	o.mu.Unlock()

	o.Connect()
	logger.Debug("👁️ SyncOrchestrator: представление подключено (всего %d)", views)
	return &ViewLease{orchestrator: o}
}

func (o *SyncOrchestrator) release() {
	o.mu.Lock()
	if o.views > 0 {
		o.views--
	}
	views := o.views
	o.mu.Unlock()

	logger.Debug("👁️ SyncOrchestrator: представление отключено (осталось %d), соединение сохраняется", views)
}

// Status возвращает снимок состояния
func (o *SyncOrchestrator) Status() Status {
	o.mu.Lock()
	views := o.views
	o.mu.Unlock()

	return Status{
		Push:          o.manager.Status(),
		PollerRunning: o.poller.IsRunning(),
		Views:         views,
		TrackedCoins:  append([]string(nil), o.settings.TrackedCoins...),
		Uptime:        o.clock.Since(o.startedAt).Round(time.Second).String(),
	}
}

// RefreshPrices загружает цены отслеживаемых монет через REST.
// Ошибка без запасных данных уходит в Sink как уведомление.
func (o *SyncOrchestrator) RefreshPrices(ctx context.Context) error {
	if o.prices == nil || len(o.settings.TrackedCoins) == 0 {
		return nil
	}

	prices, stale, err := o.prices.Prices(ctx, o.settings.TrackedCoins)
	if err != nil {
		o.sink.OnNotify("Failed to fetch crypto prices", types.SeverityError)
		return err
	}
	if stale {
		// Запасная запись старше push-цен: только заполняем монеты без значения
		seeded := o.seedPrices(prices)
		logger.Warn("⚠️ SyncOrchestrator: цены из запасной записи кэша, заполнено монет: %d", seeded)
		return nil
	}

	o.handlePrices(prices)
	return nil
}

// seedPrices передает в Sink цены только тех монет, для которых еще нет базовой цены
func (o *SyncOrchestrator) seedPrices(prices []types.PriceSnapshot) int {
	seeded := 0
	for _, p := range prices {
		if _, known := o.notifier.LastPrice(p.ID); known {
			continue
		}
		o.sink.OnPriceUpdate(p.ID, p.Price)
		o.notifier.ObservePrice(p)
		seeded++
	}
	return seeded
}

// PollWeather выполняет один внеочередной цикл опроса погоды
func (o *SyncOrchestrator) PollWeather(ctx context.Context) weather.PollReport {
	return o.poller.PollOnce(ctx)
}

func (o *SyncOrchestrator) handlePrices(prices []types.PriceSnapshot) {
	for _, p := range prices {
		o.sink.OnPriceUpdate(p.ID, p.Price)
		if note, ok := o.notifier.ObservePrice(p); ok {
			o.metrics.Notification(string(note.Kind))
			o.sink.OnNotify(note.Message, note.Severity)
		}
	}
}

func (o *SyncOrchestrator) handleWeather(snapshot types.WeatherSnapshot, _ bool) {
	o.sink.OnWeatherUpdate(snapshot.City, snapshot)
	for _, note := range o.notifier.ObserveWeather(snapshot) {
		o.metrics.Notification(string(note.Kind))
		o.sink.OnNotify(note.Message, note.Severity)
	}
}

// handleWeatherError сообщает о городе без данных. Ненайденный город не повторяем
// в Sink на каждом цикле: он уже в логе.
func (o *SyncOrchestrator) handleWeatherError(city string, err error) {
	if errors.Is(err, openweather.ErrCityNotFound) || upstream.IsNotFound(err) {
		return
	}
	o.sink.OnNotify(fmt.Sprintf("Failed to fetch weather for %s", city), types.SeverityError)
}

func (o *SyncOrchestrator) handleTerminal(reason string) {
	logger.Error("❌ SyncOrchestrator: %s", reason)
	o.sink.OnTerminalFailure(reason)
}
