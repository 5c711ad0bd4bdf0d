package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWriterLevels(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	l := InitWriter(&buf, "warn", false)
	l.Info().Msg("hidden")
	l.Warn().Str("chat_id", "5").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, "5", line["chat_id"])

	InitWriter(&buf, "nonsense", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestSlogBridge(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	zl := InitWriter(&buf, "info", false)
	s := Slog(zl).With("component", "mcp").WithGroup("req")
	s.Debug("dropped")
	s.Warn("slow call", "method", "tools/call")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "slow call", line["message"])
	assert.Equal(t, "mcp", line["component"])
	assert.Equal(t, "tools/call", line["req.method"])
}
