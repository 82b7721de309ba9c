package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetup_ParsesValidLevel(t *testing.T) {
	Setup("warn", "console")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestSetup_InvalidLevelFallsBackToInfo(t *testing.T) {
	Setup("not-a-level", "console")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestSetup_JSONFormatDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { Setup("debug", "json") })
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetup_ConsoleFormatDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { Setup("error", "console") })
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
}
