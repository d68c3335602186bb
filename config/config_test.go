package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-engine/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "finance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadNoPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := writeConfig(t, "port: 9090\nfingerprint_bucket: 30s\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.FingerprintBucket)
	// Untouched keys keep their defaults.
	assert.Equal(t, config.Default().DatabasePath, cfg.DatabasePath)
	assert.Equal(t, config.Default().PassInterval, cfg.PassInterval)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "port: [not a port\n")
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestValidationRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad port":           "port: -1\n",
		"zero pass interval": "pass_interval: 0s\n",
		"zero bucket":        "fingerprint_bucket: 0s\n",
		"retention < bucket": "fingerprint_bucket: 1h\ndedup_retention: 1m\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
