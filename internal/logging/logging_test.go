package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/config"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, config.LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("anomaly detected", "device_id", "meter_7")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "anomaly detected", entry["msg"])
	assert.Equal(t, "meter_7", entry["device_id"])
}

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, config.LogConfig{})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("window closed", "sum", 600.0)
	assert.Contains(t, buf.String(), "window closed")
	assert.Contains(t, buf.String(), "sum=600")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, config.LogConfig{Level: "loud"})
	assert.Error(t, err)
	_, err = NewWithWriter(&bytes.Buffer{}, config.LogConfig{Format: "xml"})
	assert.Error(t, err)
}
