package logger

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevelFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{name: "debug_logs_everything", level: "debug", wantDebug: true, wantInfo: true, wantWarn: true},
		{name: "info_skips_debug", level: "INFO", wantDebug: false, wantInfo: true, wantWarn: true},
		{name: "warn_skips_info", level: "warn", wantDebug: false, wantInfo: false, wantWarn: true},
		{name: "unknown_level_logs_everything", level: "verbose", wantDebug: true, wantInfo: true, wantWarn: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			l := NewWithWriter(&buf, tt.level, false)

			l.Debug("debug %d", 1)
			l.Info("info %d", 2)
			l.Warn("warn %d", 3)

			out := buf.String()
			assert.Equal(t, tt.wantDebug, bytes.Contains([]byte(out), []byte("debug 1")))
			assert.Equal(t, tt.wantInfo, bytes.Contains([]byte(out), []byte("info 2")))
			assert.Equal(t, tt.wantWarn, bytes.Contains([]byte(out), []byte("warn 3")))
		})
	}
}

func TestLoggerSetLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWithWriter(&buf, LevelError, false)

	l.Info("hidden")
	l.SetLevel("info")
	l.Info("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
	assert.Equal(t, LevelInfo, l.Level())
}

func TestNewLoggerWritesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "sync.log")

	l, err := NewLogger(path, LevelInfo, false)
	require.NoError(t, err)
	defer l.Close()

	l.Error("boom %s", "here")
	require.FileExists(t, path)
}

func TestAlertFormatsDirection(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWithWriter(&buf, LevelInfo, false)

	l.Alert("bitcoin", "down", 2.5)
	assert.Contains(t, buf.String(), "bitcoin ↓2.50")
}
