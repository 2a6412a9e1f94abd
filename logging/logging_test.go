package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Text(t *testing.T) {
	var out bytes.Buffer
	logger, closeFn, err := newLogger(Config{Level: "warn"}, &out)
	require.NoError(t, err)
	defer closeFn()

	assert.Equal(t, log.WarnLevel, logger.GetLevel())
	logger.Info("hidden")
	logger.WithField("source", "news").Warn("shown")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "msg=shown")
	assert.Contains(t, out.String(), "source=news")
}

func TestNew_JSON(t *testing.T) {
	var out bytes.Buffer
	logger, _, err := newLogger(Config{Level: "info", Format: "json"}, &out)
	require.NoError(t, err)

	logger.WithField("records", 3).Info("Chunk saved")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "Chunk saved", entry["msg"])
	assert.EqualValues(t, 3, entry["records"])
}

func TestNew_File(t *testing.T) {
	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "scraper.log")
	logger, closeFn, err := newLogger(Config{Level: "info", File: path}, &out)
	require.NoError(t, err)

	logger.Info("to both")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, out.String(), "to both")
}

func TestNew_Invalid(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, _, err = New(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
