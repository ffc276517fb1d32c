package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailforward/internal/model"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(model.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Str("component", "batch").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "batch", entry["component"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(model.LogConfig{}, &buf)
	require.NoError(t, err)

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestNewBadLevel(t *testing.T) {
	_, err := New(model.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}
