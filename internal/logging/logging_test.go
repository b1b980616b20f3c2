package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.Disabled, ParseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", FormatAuto, &buf)

	log.Info().Msg("hidden")
	log.Warn().Str("item", "3").Msg("shown")

	line := bytes.TrimSpace(buf.Bytes())
	require.True(t, gjson.ValidBytes(line), "buffer is not a terminal so output is JSON")
	assert.Equal(t, "shown", gjson.GetBytes(line, "message").String())
	assert.Equal(t, "3", gjson.GetBytes(line, "item").String())
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", FormatConsole, &buf)
	log.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, gjson.Valid(buf.String()))
}
