// internal/core/domain/notifier/notifier.go
package notifier

import (
	"sync"

	"crypto-weather-sync/internal/types"
	"crypto-weather-sync/pkg/logger"
)

// Notifier хранит последние увиденные значения и сравнивает с ними новые.
// Первое наблюдение по монете или городу только запоминается.
type Notifier struct {
	mu          sync.Mutex
	thresholds  Thresholds
	lastPrice   map[string]types.PriceSnapshot
	lastWeather map[string]types.WeatherSnapshot
}

// New создает Notifier
func New(thresholds Thresholds) *Notifier {
	return &Notifier{
		thresholds:  thresholds,
		lastPrice:   make(map[string]types.PriceSnapshot),
		lastWeather: make(map[string]types.WeatherSnapshot),
	}
}

// ObservePrice обновляет базу цены и возвращает уведомление, если изменение значимо
func (n *Notifier) ObservePrice(cur types.PriceSnapshot) (types.Notification, bool) {
	n.mu.Lock()
	prev, seen := n.lastPrice[cur.ID]
	n.lastPrice[cur.ID] = cur
	n.mu.Unlock()

	if !seen {
		return types.Notification{}, false
	}

	note, ok := EvaluatePrice(prev, cur, n.thresholds.PricePct)
	if ok {
		logger.Alert(cur.DisplayName(), note.Direction(), note.Magnitude)
	}
	return note, ok
}

// ObserveWeather обновляет базу погоды и возвращает уведомления об изменениях
func (n *Notifier) ObserveWeather(cur types.WeatherSnapshot) []types.Notification {
	n.mu.Lock()
	prev, seen := n.lastWeather[cur.City]
	n.lastWeather[cur.City] = cur
	n.mu.Unlock()

	if !seen {
		return nil
	}

	notes := EvaluateWeather(prev, cur, n.thresholds.TempC)
	for _, note := range notes {
		logger.Alert(cur.City, note.Direction(), note.Magnitude)
	}
	return notes
}

// LastPrice возвращает последнюю увиденную цену
func (n *Notifier) LastPrice(id string) (types.PriceSnapshot, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.lastPrice[id]
	return p, ok
}

// Reset забывает все базовые значения
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastPrice = make(map[string]types.PriceSnapshot)
	n.lastWeather = make(map[string]types.WeatherSnapshot)
}
