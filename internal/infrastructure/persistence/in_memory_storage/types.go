package storage

import (
	"time"

	"crypto-weather-sync/internal/types"
)

// PricePoint - точка истории цены
type PricePoint struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// CoinState - текущая цена монеты и короткая история
type CoinState struct {
	ID        string       `json:"id"`
	Price     float64      `json:"price"`
	UpdatedAt time.Time    `json:"updated_at"`
	History   []PricePoint `json:"history,omitempty"`
}

// StoredNotification - уведомление в журнале
type StoredNotification struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Severity  types.Severity `json:"severity"`
	CreatedAt time.Time      `json:"created_at"`
}

// StorageStats статистика хранилища
type StorageStats struct {
	Coins           int       `json:"coins"`
	Cities          int       `json:"cities"`
	Notifications   int       `json:"notifications"`
	PriceUpdates    int64     `json:"price_updates"`
	WeatherUpdates  int64     `json:"weather_updates"`
	TerminalFailure string    `json:"terminal_failure,omitempty"`
	LastUpdate      time.Time `json:"last_update"`
}

// Ошибки хранилища
var (
	ErrCoinNotFound = StorageError{"coin not found"}
	ErrCityNotFound = StorageError{"city not found"}
)

// StorageError ошибка хранилища
type StorageError struct {
	Message string
}

func (e StorageError) Error() string {
	return e.Message
}
