package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/larder/pkg/config"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Debug().Str("url", "https://dummyjson.com/recipes/1").Msg("cache hit")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "cache hit", line["message"])
	assert.Equal(t, "https://dummyjson.com/recipes/1", line["url"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LogConfig{Level: "WARN", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())
	log.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LogConfig{Format: "console"}, &buf)
	require.NoError(t, err)

	log.Info().Msg("listening")
	assert.False(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), "listening")
}

func TestBadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}
