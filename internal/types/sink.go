// internal/types/sink.go
package types

import "context"

// Sink - приемник обновлений на стороне UI.
// Ядро только вызывает эти методы и никогда не читает состояние UI.
type Sink interface {
	OnPriceUpdate(id string, price float64)
	OnWeatherUpdate(city string, snapshot WeatherSnapshot)
	OnNotify(message string, severity Severity)
	OnTerminalFailure(reason string)
}

// FavoritesProvider - доступ только на чтение к избранным городам пользователя
type FavoritesProvider interface {
	FavoriteCities(ctx context.Context) ([]string, error)
}

// StaticFavorites - фиксированный список городов (из конфигурации)
type StaticFavorites []string

func (s StaticFavorites) FavoriteCities(context.Context) ([]string, error) {
	out := make([]string, len(s))
	copy(out, s)
	return out, nil
}

// MultiSink рассылает каждое событие всем приемникам по порядку
type MultiSink []Sink

func (m MultiSink) OnPriceUpdate(id string, price float64) {
	for _, s := range m {
		s.OnPriceUpdate(id, price)
	}
}

func (m MultiSink) OnWeatherUpdate(city string, snapshot WeatherSnapshot) {
	for _, s := range m {
		s.OnWeatherUpdate(city, snapshot)
	}
}

func (m MultiSink) OnNotify(message string, severity Severity) {
	for _, s := range m {
		s.OnNotify(message, severity)
	}
}

func (m MultiSink) OnTerminalFailure(reason string) {
	for _, s := range m {
		s.OnTerminalFailure(reason)
	}
}
