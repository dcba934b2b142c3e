package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	require.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLoggerJSONAndLevel(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("LOG_LEVEL", "warn")
	var buf bytes.Buffer
	l := NewZerologLoggerTo(&buf, "coordinator")
	l.Infof("hidden")
	l.Warnf("vehicle %s locked", "v1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "coordinator", rec["component"])
	assert.Equal(t, "warn", rec["level"])
	assert.Equal(t, "vehicle v1 locked", rec["message"])
}

func TestZerologLoggerWith(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	var buf bytes.Buffer
	l := NewZerologLoggerTo(&buf, "api").(*ZerologLogger).With("actor", "op-1")
	l.Debugw("request", map[string]any{"path": "/trips"})
	assert.Contains(t, buf.String(), `"actor":"op-1"`)
	assert.Contains(t, buf.String(), `"path":"/trips"`)
}

func TestZerologLoggerFile(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "fleetd.log")
	t.Setenv("LOG_FILE", path)

	NewZerologLogger("checkpoint").Infof("snapshot saved")
	NewZerologLogger("telemetry").Infof("tick %d", 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"component":"checkpoint"`)
	assert.Contains(t, lines[1], `"message":"tick 1"`)
}
