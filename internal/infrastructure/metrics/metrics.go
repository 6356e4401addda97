// internal/infrastructure/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cwsync"

// Результаты обращения к кэшу
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
	CacheError = "error"
)

// Metrics - счетчики слоя синхронизации.
// Все методы безопасны для nil-получателя, чтобы компоненты работали без метрик.
type Metrics struct {
	registry *prometheus.Registry

	cacheRequests    *prometheus.CounterVec
	upstreamRetries  *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	pushReconnects   prometheus.Counter
	pushState        *prometheus.GaugeVec
	pushMessages     *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	pollerCities     *prometheus.CounterVec
}

// New создает и регистрирует коллекторы в собственном реестре
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "requests_total",
				Help:      "Upstream cache lookups by result.",
			},
			[]string{"result"},
		),
		upstreamRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "retries_total",
				Help:      "Retries of upstream fetches by reason.",
			},
			[]string{"reason"},
		),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Upstream HTTP requests by status class.",
			},
			[]string{"status"},
		),
		pushReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "push",
				Name:      "reconnects_total",
				Help:      "Scheduled push channel reconnects.",
			},
		),
		pushState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "push",
				Name:      "state",
				Help:      "Current push channel state (1 for the active state).",
			},
			[]string{"state"},
		),
		pushMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "push",
				Name:      "messages_total",
				Help:      "Push channel messages by outcome.",
			},
			[]string{"outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "notifications_total",
				Help:      "Emitted user notifications by kind.",
			},
			[]string{"kind"},
		),
		pollerCities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "weather",
				Name:      "city_polls_total",
				Help:      "Weather poller per-city fetches by outcome.",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.cacheRequests,
		m.upstreamRetries,
		m.upstreamRequests,
		m.pushReconnects,
		m.pushState,
		m.pushMessages,
		m.notifications,
		m.pollerCities,
		prometheus.NewGoCollector(),
	)

	return m
}

// Registry возвращает реестр (для тестов и promhttp)
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler отдает метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheRequest(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) UpstreamRetry(reason string) {
	if m == nil {
		return
	}
	m.upstreamRetries.WithLabelValues(reason).Inc()
}

func (m *Metrics) UpstreamRequest(status string) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(status).Inc()
}

func (m *Metrics) PushReconnect() {
	if m == nil {
		return
	}
	m.pushReconnects.Inc()
}

// PushState выставляет 1 для активного состояния и 0 для остальных
func (m *Metrics) PushState(active string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == active {
			v = 1
		}
		m.pushState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) PushMessage(outcome string) {
	if m == nil {
		return
	}
	m.pushMessages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notification(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) CityPoll(outcome string) {
	if m == nil {
		return
	}
	m.pollerCities.WithLabelValues(outcome).Inc()
}
