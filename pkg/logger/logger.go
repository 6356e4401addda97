// pkg/logger/logger.go

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Уровни логирования
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

type Logger struct {
	entry     *logrus.Logger
	logFile   *os.File
	console   io.Writer
	logLevel  string // Уровень логирования
	debugMode bool
}

// NewLogger создает логгер, пишущий в stdout и (если указан путь) в файл
func NewLogger(logPath string, logLevel string, debug bool) (*Logger, error) {
	var out io.Writer = os.Stdout
	var file *os.File

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}

		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		file = f
		out = io.MultiWriter(os.Stdout, file)
	}

	l := NewWithWriter(out, logLevel, debug)
	l.logFile = file
	return l, nil
}

// NewWithWriter создает логгер поверх произвольного writer (удобно в тестах)
func NewWithWriter(w io.Writer, logLevel string, debug bool) *Logger {
	level := strings.ToUpper(logLevel)

	entry := logrus.New()
	entry.SetOutput(w)
	entry.SetLevel(toLogrusLevel(level))
	entry.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceColors:     debug,
		DisableColors:   !debug,
	})

	return &Logger{
		entry:     entry,
		console:   w,
		logLevel:  level,
		debugMode: debug,
	}
}

// toLogrusLevel переводит строковый уровень в logrus.Level.
// Неизвестный уровень означает "логировать всё".
func toLogrusLevel(level string) logrus.Level {
	switch level {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelInfo:
		return logrus.InfoLevel
	case LevelWarn, "WARNING":
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.DebugLevel
	}
}

// Level возвращает текущий уровень логирования
func (l *Logger) Level() string {
	return l.logLevel
}

// SetLevel меняет уровень логирования на лету (флаг -log-level)
func (l *Logger) SetLevel(level string) {
	l.logLevel = strings.ToUpper(level)
	l.entry.SetLevel(toLogrusLevel(l.logLevel))
}

// Методы для разных уровней
func (l *Logger) Debug(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.entry.Warnf(format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.entry.Fatalf(format, v...)
}

// WithField возвращает запись logrus с полем (для структурных логов компонентов)
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry.WithField(key, value)
}

func (l *Logger) Status(stats map[string]string) {
	fmt.Fprintln(l.console, strings.Repeat("─", 50))
	fmt.Fprintln(l.console, "📊 СТАТУС СИНХРОНИЗАЦИИ")
	for key, value := range stats {
		fmt.Fprintf(l.console, "   %-20s: %s\n", key, value)
	}
	fmt.Fprintln(l.console, strings.Repeat("─", 50))
}

// Alert логирует значимое изменение (цена, температура, погода)
func (l *Logger) Alert(subject, direction string, change float64) {
	icon := "📈"
	arrow := "↑"
	switch direction {
	case "down":
		icon, arrow = "📉", "↓"
	case "weather":
		icon, arrow = "🌤️", "~"
	}

	l.Info("%s ИЗМЕНЕНИЕ: %s %s%.2f", icon, subject, arrow, change)
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.logFile.Close()
	}
}
