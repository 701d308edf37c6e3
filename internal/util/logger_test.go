package util

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestZapLogger_SplitsByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	log := newZapLogger("debug", LogFormatJSON, zapcore.AddSync(&out), zapcore.AddSync(&errOut))

	log.Debugw("warming up", "attempt", 1)
	log.Errorw("store unavailable", "driver", "postgres")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "debug", rec["level"])
	assert.Equal(t, "warming up", rec["msg"])
	assert.EqualValues(t, 1, rec["attempt"])

	assert.Contains(t, errOut.String(), `"msg":"store unavailable"`)
	assert.Contains(t, errOut.String(), `"driver":"postgres"`)
}

func TestZapLogger_LevelFilter(t *testing.T) {
	var out, errOut bytes.Buffer
	log := newZapLogger("warn", LogFormatConsole, zapcore.AddSync(&out), zapcore.AddSync(&errOut))

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
	assert.Empty(t, errOut.String())
}

func TestZapLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	var out bytes.Buffer
	log := newZapLogger("loud", LogFormatJSON, zapcore.AddSync(&out), zapcore.AddSync(&out))

	log.Debug("hidden")
	log.Info("shown")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
}
