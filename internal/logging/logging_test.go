package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", &buf)
	require.NoError(t, err)

	component := Component(logger, "provisioning")
	component.Info().Str("profile", "bedroom").Msg("rendered")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "provisioning", entry["component"])
	assert.Equal(t, "bedroom", entry["profile"])
	assert.Equal(t, "rendered", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, lvl)

	lvl, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
