// internal/core/domain/weather/poller.go
package weather

import (
	"context"
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"crypto-weather-sync/internal/infrastructure/metrics"
	"crypto-weather-sync/internal/types"
	"crypto-weather-sync/pkg/logger"
)

// Source - погода по городу (через кэш апстрима)
type Source interface {
	Current(ctx context.Context, city string) (types.WeatherSnapshot, bool, error)
}

// Handler получает снапшот города; stale - данные из запасной записи кэша
type Handler func(snapshot types.WeatherSnapshot, stale bool)

// ErrorHandler получает ошибку города, который пропущен в этом цикле
type ErrorHandler func(city string, err error)

// Config - параметры опроса
type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
}

// Options - зависимости опросчика
type Options struct {
	Source    Source
	Favorites types.FavoritesProvider
	OnWeather Handler
	OnError   ErrorHandler
	Clock     clock.WithTicker
	Metrics   *metrics.Metrics
}

// PollReport - итог одного цикла
type PollReport struct {
	Cities    int
	Succeeded int
	Failed    int
	Stale     int
}

// Poller периодически опрашивает погоду избранных городов
type Poller struct {
	cfg       Config
	source    Source
	favorites types.FavoritesProvider
	onWeather Handler
	onError   ErrorHandler
	clock     clock.WithTicker
	metrics   *metrics.Metrics

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller создает опросчик
func NewPoller(cfg Config, opts Options) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Poller{
		cfg:       cfg,
		source:    opts.Source,
		favorites: opts.Favorites,
		onWeather: opts.OnWeather,
		onError:   opts.OnError,
		clock:     clk,
		metrics:   opts.Metrics,
	}
}

// Start запускает опрос: сразу и затем каждые Interval. Повторный вызов ничего не делает.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.loop(ctx, p.done)
	logger.Info("🌤️ WeatherPoller: запущен, интервал %v", p.cfg.Interval)
}

// Stop останавливает опрос и ждет завершения цикла. Повторный вызов безопасен.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	logger.Info("🛑 WeatherPoller: остановлен")
}

// IsRunning возвращает true между Start и Stop
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	p.PollOnce(ctx)

	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			p.PollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PollOnce опрашивает все избранные города один раз.
// Ошибка города логируется, остальные города цикла обрабатываются.
func (p *Poller) PollOnce(ctx context.Context) PollReport {
	var report PollReport

	cities, err := p.favorites.FavoriteCities(ctx)
	if err != nil {
		logger.Warn("⚠️ WeatherPoller: не удалось получить избранные города: %v", err)
		return report
	}

	seen := make(map[string]struct{}, len(cities))
	for _, city := range cities {
		city = strings.TrimSpace(city)
		if city == "" {
			continue
		}
		if _, dup := seen[city]; dup {
			continue
		}
		seen[city] = struct{}{}

		if ctx.Err() != nil {
			return report
		}
		report.Cities++

		fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
		snapshot, stale, err := p.source.Current(fetchCtx, city)
		cancel()

		if err != nil {
			report.Failed++
			p.metrics.CityPoll("error")
			logger.Warn("⚠️ WeatherPoller: %s пропущен: %v", city, err)
			if p.onError != nil {
				p.onError(city, err)
			}
			continue
		}

		report.Succeeded++
		if stale {
			report.Stale++
			p.metrics.CityPoll("stale")
		} else {
			p.metrics.CityPoll("ok")
		}

		if p.onWeather != nil {
			p.onWeather(snapshot, stale)
		}
	}

	logger.Debug("🌤️ WeatherPoller: цикл завершен: %d городов, %d ошибок", report.Cities, report.Failed)
	return report
}
