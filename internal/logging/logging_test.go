package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "trace", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_AutoFormatNonTerminalIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Output: &buf, Format: "auto", Level: "info"})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("Record synced", "record_id", "r1")
	logger.Debug("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "Record synced", entry["msg"])
	assert.Equal(t, "r1", entry["record_id"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Output: &buf, Format: "text", Level: "debug"})
	require.NoError(t, err)

	logger.Debug("probe failed", "error", "timeout")
	assert.Contains(t, buf.String(), "msg=\"probe failed\"")
	assert.Contains(t, buf.String(), "error=timeout")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")
	logger, closer, err := New(Options{File: path, Level: "info", MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("written to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNew_Errors(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, _, err = New(Options{Format: "xml", Output: &bytes.Buffer{}})
	assert.Error(t, err)
}
