package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "warn", Output: &buf})

	logger.Info().Msg("hidden")
	logger.Warn().Str("index_id", "7").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"index_id":"7"`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "loud", Output: &buf})

	logger.Debug().Msg("debug")
	logger.Info().Msg("info")

	assert.NotContains(t, buf.String(), `"message":"debug"`)
	assert.Contains(t, buf.String(), `"message":"info"`)
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, zerolog.Disabled, OrNop(nil).GetLevel())

	custom := zerolog.New(nil).Level(zerolog.WarnLevel)
	assert.Equal(t, zerolog.WarnLevel, OrNop(&custom).GetLevel())
}
