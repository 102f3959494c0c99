package log

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func Test_SetLevel_filters_existing_loggers(t *testing.T) {
	// Given
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	logger := New(Config{Level: "trace", Output: &buf})

	// When
	lvl := SetLevel("warn")
	logger.Info().Msg("hidden")

	// Then
	assert.Equal(t, zerolog.WarnLevel, lvl)
	assert.Empty(t, buf.String())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func Test_SetLevel_unknown_name_means_info(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	assert.Equal(t, zerolog.InfoLevel, SetLevel("loud"))
}
