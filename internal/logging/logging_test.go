package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(0))
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replaycache.log")

	logger, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)
	logger.Debug("stored pair", Hash("abc"), Occurrence(2))
	Sync(logger)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"stored pair"`)
	assert.Contains(t, string(data), `"hash":"abc"`)
	assert.Contains(t, string(data), `"service":"replaycache"`)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("REPLAYCACHE_LOG_LEVEL", "warn")
	t.Setenv("REPLAYCACHE_LOG_FORMAT", "console")
	t.Setenv("REPLAYCACHE_LOG_FILE", "/tmp/x.log")

	cfg := FromEnv()
	assert.Equal(t, Config{Level: "warn", Format: "console", File: "/tmp/x.log"}, cfg)
}
