package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ParsesNamedLevels(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"WARN":  zerolog.WarnLevel,
	}

	for level, want := range cases {
		log, err := New(level, false)
		require.NoError(t, err, level)
		assert.Equal(t, want, log.GetLevel(), level)
	}
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New("verbose", false)
	assert.Error(t, err)

	_, err = New("verbose", true)
	assert.Error(t, err)
}

func TestNew_PrettyOutput(t *testing.T) {
	log, err := New("info", true)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
