package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "DATA_DIR", "LOG_LEVEL", "DOCTOOLS_MAX_FILES"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_CreatesDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "DocTools.config")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<DocTools>")
	assert.Contains(t, string(data), "<MaxFilesPerSession>50</MaxFilesPerSession>")

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.GetDataDir())
	assert.Equal(t, filepath.Join(dir, "data", "uploads"), cfg.GetUploadDir())
	assert.Equal(t, 200*time.Millisecond, cfg.TickInterval())

	total, err := cfg.MaxTotalBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(500*1024*1024), total)
}

func TestLoadConfig_ReadsFileAndKeepsDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "DocTools.config")

	content := `<?xml version="1.0" encoding="UTF-8"?>
<DocTools>
  <Server><Port>9100</Port></Server>
  <Staging><MaxFilesPerSession>3</MaxFilesPerSession><MaxTotalSize>10MB</MaxTotalSize></Staging>
  <Storage><DataDirectory>/srv/doctools</DataDirectory></Storage>
</DocTools>`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/srv/doctools", cfg.GetDataDir())
	assert.Equal(t, 3, cfg.Staging.MaxFilesPerSession)
	assert.Equal(t, 15.0, cfg.Processing.MaxProgressStep, "unset values keep defaults")

	total, err := cfg.MaxTotalBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), total)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("PORT", "7000")
	t.Setenv("DATA_DIR", "/var/lib/doctools")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DOCTOOLS_MAX_FILES", "7")

	cfg, err := LoadConfig(filepath.Join(dir, "DocTools.config"))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/var/lib/doctools", cfg.GetDataDir())
	assert.Equal(t, "/var/lib/doctools/uploads", cfg.GetUploadDir())
	assert.Equal(t, "debug", cfg.Advanced.LogLevel)
	assert.Equal(t, 7, cfg.Staging.MaxFilesPerSession)
}

func TestLoadConfig_Invalid(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"malformed xml", "<DocTools><Server>"},
		{"bad port", "<DocTools><Server><Port>70000</Port></Server></DocTools>"},
		{"bad size", "<DocTools><Staging><MaxTotalSize>lots</MaxTotalSize></Staging></DocTools>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".config")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestMaxTotalBytesDisabled(t *testing.T) {
	cfg := DefaultConfig()
	for _, v := range []string{"", "0"} {
		cfg.Staging.MaxTotalSize = v
		n, err := cfg.MaxTotalBytes()
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	root := t.TempDir()
	cfg.Storage.DataDirectory = filepath.Join(root, "data")
	cfg.Storage.UploadsDirectory = filepath.Join(root, "data", "uploads")

	require.NoError(t, cfg.EnsureDirectories())
	_, err := os.Stat(cfg.GetUploadDir())
	assert.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8090", cfg.GetServerAddr())
}
