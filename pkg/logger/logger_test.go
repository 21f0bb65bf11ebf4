package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug")

	log.WithField("component", "pricestore").Info("cache hit")

	m := logLine(t, &buf)
	assert.Equal(t, "pricestore", m["component"])
	assert.Equal(t, "cache hit", m["message"])
	assert.Equal(t, "info", m["level"])
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug")

	log.WithFields(map[string]interface{}{
		"instrument": "BHP.AX",
		"rows":       float64(42),
	}).Warn("short history")

	m := logLine(t, &buf)
	assert.Equal(t, "BHP.AX", m["instrument"])
	assert.Equal(t, float64(42), m["rows"])
	assert.Equal(t, "warn", m["level"])
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug")

	log.WithError(errors.New("source down")).Error("fetch failed")

	m := logLine(t, &buf)
	assert.Equal(t, "source down", m["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")

	log.Info("suppressed")
	assert.Zero(t, buf.Len())

	log.Warn("emitted")
	assert.NotZero(t, buf.Len())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("bogus"))
}
