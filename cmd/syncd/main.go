// cmd/syncd/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"crypto-weather-sync/application/bootstrap"
	"crypto-weather-sync/internal/infrastructure/config"
	"crypto-weather-sync/pkg/logger"
)

var (
	version   = "1.0.0"
	buildTime = "неизвестно"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var (
		cfgPath     string
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&cfgPath, "config", ".env", "Путь к файлу конфигурации")
	flag.StringVar(&logLevel, "log-level", "", "Уровень логирования: debug, info, warn, error (переопределяет .env)")
	flag.BoolVar(&showVersion, "version", false, "Показать версию")
	flag.Parse()

	if showVersion {
		fmt.Printf("crypto-weather-sync v%s (сборка: %s)\n", version, buildTime)
		return
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Error("❌ Не удалось загрузить конфигурацию: %v", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := initLogger(cfg); err != nil {
		fmt.Printf("❌ Не удалось инициализировать логгер: %v\n", err)
		os.Exit(1)
	}
	defer logger.GetLogger().Close()

	logger.Info("🚀 Запуск crypto-weather-sync v%s", version)
	logger.Info("📅 Время сборки: %s", buildTime)
	cfg.PrintSummary()

	app, err := bootstrap.NewAppBuilder().WithConfig(cfg).Build()
	if err != nil {
		logger.Error("❌ Не удалось собрать приложение: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Error("❌ Ошибка запуска приложения: %v", err)
		os.Exit(1)
	}

	logger.Info("🛑 Нажмите Ctrl+C для остановки")
	<-ctx.Done()
	logger.Info("📶 Получен сигнал завершения")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Stop(shutdownCtx); err != nil {
		logger.Error("❌ Ошибка остановки приложения: %v", err)
		os.Exit(1)
	}
}

// initLogger создает глобальный логгер; при ошибке файла переходит на консоль
func initLogger(cfg *config.Config) error {
	logPath := cfg.Logging.File
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return fmt.Errorf("создание директории логов: %w", err)
		}
	}

	if err := logger.InitGlobal(logPath, cfg.Logging.Level, cfg.Logging.Debug); err != nil {
		fmt.Printf("⚠️ Файловый логгер недоступен: %v. Переход на консольный...\n", err)
		return logger.InitGlobal("", cfg.Logging.Level, cfg.Logging.Debug)
	}
	return nil
}
