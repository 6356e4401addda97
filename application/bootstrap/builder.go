// application/bootstrap/builder.go
package bootstrap

import (
	"fmt"

	"k8s.io/utils/clock"

	"crypto-weather-sync/internal/infrastructure/config"
	"crypto-weather-sync/internal/infrastructure/transport/push"
	"crypto-weather-sync/internal/types"
	"crypto-weather-sync/pkg/logger"
)

// AppBuilder строит приложение
type AppBuilder struct {
	config  *config.Config
	options []AppOption
}

// AppOption - опция приложения
type AppOption func(*Application) error

// NewAppBuilder создает билдер
func NewAppBuilder() *AppBuilder {
	return &AppBuilder{}
}

// WithConfig задает конфигурацию
func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	b.config = cfg
	return b
}

// WithConfigFile загружает конфигурацию из файла
func (b *AppBuilder) WithConfigFile(path string) *AppBuilder {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Error("❌ Ошибка загрузки конфигурации %s: %v", path, err)
		return b
	}
	b.config = cfg
	return b
}

// WithOption добавляет опцию
func (b *AppBuilder) WithOption(option AppOption) *AppBuilder {
	b.options = append(b.options, option)
	return b
}

// Build создает приложение и применяет опции
func (b *AppBuilder) Build() (*Application, error) {
	if b.config == nil {
		return nil, fmt.Errorf("конфигурация не задана")
	}

	app, err := NewApplication(b.config)
	if err != nil {
		return nil, fmt.Errorf("создание приложения: %w", err)
	}

	for _, option := range b.options {
		if err := option(app); err != nil {
			return nil, fmt.Errorf("применение опции: %w", err)
		}
	}

	return app, nil
}

// ==================== Опции приложения ====================

// WithPushChannel подменяет транспорт push-канала
func WithPushChannel(channel push.Channel) AppOption {
	return func(app *Application) error {
		if channel == nil {
			return fmt.Errorf("push channel is nil")
		}
		app.channel = channel
		return nil
	}
}

// WithFavorites подменяет источник избранных городов
func WithFavorites(provider types.FavoritesProvider) AppOption {
	return func(app *Application) error {
		app.favorites = provider
		return nil
	}
}

// WithClock подменяет часы оркестратора
func WithClock(clk clock.WithTickerAndDelayedExecution) AppOption {
	return func(app *Application) error {
		app.clock = clk
		return nil
	}
}
