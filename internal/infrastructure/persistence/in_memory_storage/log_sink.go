// internal/infrastructure/persistence/in_memory_storage/log_sink.go
package storage

import (
	"crypto-weather-sync/internal/types"
	"crypto-weather-sync/pkg/logger"
)

// LogSink пишет события слоя синхронизации в лог
type LogSink struct{}

var _ types.Sink = LogSink{}

func (LogSink) OnPriceUpdate(id string, price float64) {
	logger.Debug("💰 %s: $%.2f", id, price)
}

func (LogSink) OnWeatherUpdate(city string, snapshot types.WeatherSnapshot) {
	logger.Debug("🌤️ %s: %.1f°C, %s", city, snapshot.Temperature, snapshot.Condition)
}

func (LogSink) OnNotify(message string, severity types.Severity) {
	switch severity {
	case types.SeverityError:
		logger.Error("🔔 %s", message)
	case types.SeverityWarning:
		logger.Warn("🔔 %s", message)
	default:
		logger.Info("🔔 %s", message)
	}
}

func (LogSink) OnTerminalFailure(reason string) {
	logger.Error("💀 Терминальный сбой: %s", reason)
}
