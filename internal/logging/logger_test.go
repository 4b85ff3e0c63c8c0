package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "production", "INFO")
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Str("job_id", "j1").Msg("scan completed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "exactly one JSON line expected: %s", buf.String())
	assert.Equal(t, "matching", entry["service"])
	assert.Equal(t, "j1", entry["job_id"])
	assert.Equal(t, "scan completed", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, " Local ", "debug")
	require.NoError(t, err)

	logger.Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "console output is not JSON")
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New("local", "chatty")
	assert.Error(t, err)
}
