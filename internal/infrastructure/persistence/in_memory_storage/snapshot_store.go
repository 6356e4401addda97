// internal/infrastructure/persistence/in_memory_storage/snapshot_store.go
package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"crypto-weather-sync/internal/types"
)

// StoreConfig конфигурация хранилища
type StoreConfig struct {
	MaxHistoryPerCoin int
	MaxNotifications  int
	Clock             clock.PassiveClock
}

// StoreOption функция настройки хранилища
type StoreOption func(*StoreConfig)

func WithMaxHistoryPerCoin(max int) StoreOption {
	return func(c *StoreConfig) {
		c.MaxHistoryPerCoin = max
	}
}

func WithMaxNotifications(max int) StoreOption {
	return func(c *StoreConfig) {
		c.MaxNotifications = max
	}
}

func WithClock(clk clock.PassiveClock) StoreOption {
	return func(c *StoreConfig) {
		c.Clock = clk
	}
}

// SnapshotStore - состояние, которое читает UI: последние цены, погода,
// журнал уведомлений и признак терминального сбоя. Реализует types.Sink.
type SnapshotStore struct {
	config StoreConfig
	subs   *SubscriptionManager

	mu              sync.RWMutex
	coins           map[string]*CoinState
	weather         map[string]types.WeatherSnapshot
	notifications   []StoredNotification
	terminalFailure string
	priceUpdates    int64
	weatherUpdates  int64
	lastUpdate      time.Time
}

var _ types.Sink = (*SnapshotStore)(nil)

// NewSnapshotStore создает хранилище
func NewSnapshotStore(options ...StoreOption) *SnapshotStore {
	config := StoreConfig{
		MaxHistoryPerCoin: 100,
		MaxNotifications:  50,
		Clock:             clock.RealClock{},
	}
	for _, option := range options {
		option(&config)
	}

	return &SnapshotStore{
		config:  config,
		subs:    NewSubscriptionManager(),
		coins:   make(map[string]*CoinState),
		weather: make(map[string]types.WeatherSnapshot),
	}
}

// OnPriceUpdate сохраняет цену и уведомляет подписчиков
func (s *SnapshotStore) OnPriceUpdate(id string, price float64) {
	now := s.config.Clock.Now()

	s.mu.Lock()
	coin, ok := s.coins[id]
	if !ok {
		coin = &CoinState{ID: id}
		s.coins[id] = coin
	}
	coin.Price = price
	coin.UpdatedAt = now
	coin.History = append(coin.History, PricePoint{Price: price, Timestamp: now})
	if max := s.config.MaxHistoryPerCoin; max > 0 && len(coin.History) > max {
		coin.History = append([]PricePoint(nil), coin.History[len(coin.History)-max:]...)
	}
	s.priceUpdates++
	s.lastUpdate = now
	s.mu.Unlock()

	s.subs.NotifyAll(id, price, now)
}

// OnWeatherUpdate сохраняет погоду города
func (s *SnapshotStore) OnWeatherUpdate(city string, snapshot types.WeatherSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.weather[city] = snapshot
	s.weatherUpdates++
	s.lastUpdate = s.config.Clock.Now()
}

// OnNotify добавляет уведомление в ограниченный журнал
func (s *SnapshotStore) OnNotify(message string, severity types.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = append(s.notifications, StoredNotification{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		CreatedAt: s.config.Clock.Now(),
	})
	if max := s.config.MaxNotifications; max > 0 && len(s.notifications) > max {
		s.notifications = append([]StoredNotification(nil), s.notifications[len(s.notifications)-max:]...)
	}
}

// OnTerminalFailure запоминает причину терминального сбоя
func (s *SnapshotStore) OnTerminalFailure(reason string) {
	s.OnNotify(reason, types.SeverityError)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminalFailure = reason
}

// Subscribe подписывает на обновления цены монеты (или AllCoins)
func (s *SnapshotStore) Subscribe(id string, subscriber Subscriber) func() {
	return s.subs.Subscribe(id, subscriber)
}

// GetCoin возвращает состояние монеты
func (s *SnapshotStore) GetCoin(id string) (CoinState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coin, ok := s.coins[id]
	if !ok {
		return CoinState{}, ErrCoinNotFound
	}
	return copyCoin(coin), nil
}

// GetAllPrices возвращает текущие цены
func (s *SnapshotStore) GetAllPrices() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.coins))
	for id, coin := range s.coins {
		out[id] = coin.Price
	}
	return out
}

// GetWeather возвращает погоду города
func (s *SnapshotStore) GetWeather(city string) (types.WeatherSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.weather[city]
	if !ok {
		return types.WeatherSnapshot{}, ErrCityNotFound
	}
	return w, nil
}

// GetAllWeather возвращает погоду всех городов, отсортированную по имени
func (s *SnapshotStore) GetAllWeather() []types.WeatherSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.WeatherSnapshot, 0, len(s.weather))
	for _, w := range s.weather {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].City < out[j].City })
	return out
}

// RecentNotifications возвращает до limit последних уведомлений, новые первыми
func (s *SnapshotStore) RecentNotifications(limit int) []StoredNotification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.notifications)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]StoredNotification, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.notifications[i])
	}
	return out
}

// TerminalFailure возвращает причину терминального сбоя, если он был
func (s *SnapshotStore) TerminalFailure() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminalFailure, s.terminalFailure != ""
}

// GetStats возвращает статистику хранилища
func (s *SnapshotStore) GetStats() StorageStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StorageStats{
		Coins:           len(s.coins),
		Cities:          len(s.weather),
		Notifications:   len(s.notifications),
		PriceUpdates:    s.priceUpdates,
		WeatherUpdates:  s.weatherUpdates,
		TerminalFailure: s.terminalFailure,
		LastUpdate:      s.lastUpdate,
	}
}

func copyCoin(c *CoinState) CoinState {
	out := *c
	out.History = append([]PricePoint(nil), c.History...)
	return out
}
