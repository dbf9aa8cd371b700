package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CustomWriter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Writer: &buf})

	log.Info("book issued")

	assert.Contains(t, buf.String(), `"msg":"book issued"`)
	assert.Contains(t, buf.String(), `"level":"INFO"`)
}

func TestNew_FormatAutoDetection(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		format      string
		wantJSON    bool
	}{
		{name: "production uses json", environment: "production", wantJSON: true},
		{name: "development uses pretty", environment: "development"},
		{name: "auto follows environment", environment: "production", format: FormatAuto, wantJSON: true},
		{name: "explicit format wins", environment: "development", format: FormatJSON, wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Level: slog.LevelInfo, Environment: tt.environment, Format: tt.format, Writer: &buf})
			log.Info("test")

			if tt.wantJSON {
				assert.Contains(t, buf.String(), `"msg":"test"`)
			} else {
				assert.Contains(t, buf.String(), "INF")
				assert.NotContains(t, buf.String(), `"msg"`)
			}
		})
	}
}

func TestNew_FileSinkTakesEverythingConsoleOnlyWarnings(t *testing.T) {
	var console, file bytes.Buffer
	log := New(Config{Level: slog.LevelInfo, Format: FormatPretty, Writer: &console, File: &file})

	log.Info("loan closed", "transaction_id", 4)
	log.Warn("store slow")

	assert.Contains(t, file.String(), `"msg":"loan closed"`)
	assert.Contains(t, file.String(), `"transaction_id":4`)
	assert.Contains(t, file.String(), `"msg":"store slow"`)

	assert.NotContains(t, console.String(), "loan closed")
	assert.Contains(t, console.String(), "store slow")
}

func TestNew_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Writer: &buf})

	log.Debug("hidden")

	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"trace", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestLogger_WithOperationAndError(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Writer: &buf})

	log.WithOperation("op-1").WithError(errors.New("boom")).Error("issue failed")

	assert.Contains(t, buf.String(), `"op_id":"op-1"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestPrettyHandler_WithGroupPrefixesKeys(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil)).WithGroup("ledger")

	log.Info("issued", "book_id", 3)

	assert.Contains(t, buf.String(), "ledger.book_id=3")
}

func TestOpenFile_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "library_system.log")

	f, err := OpenFile(path)
	require.NoError(t, err)
	_, err = f.WriteString("line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}
