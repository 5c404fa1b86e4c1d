package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PROFILE_CONFIG", "")
	t.Setenv("API_ADDR", "")
	t.Setenv("PROFILE_MAX_WARD", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, 32, cfg.MaxWard)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.toml")
	contents := `
[server]
addr = ":9000"
cors_origins = ["https://profile.example.gov.np"]

[profile]
place_name = "Sample Rural Municipality"
max_ward = 12
cache_ttl_seconds = 30

[minio]
bucket = "ward-media"
use_ssl = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	t.Setenv("PROFILE_CONFIG", path)
	t.Setenv("API_ADDR", "")
	t.Setenv("PROFILE_MAX_WARD", "9")
	t.Setenv("PROFILE_CORS_ORIGINS", "")
	t.Setenv("PROFILE_PLACE_NAME", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 9, cfg.MaxWard, "env must win over file")
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, "Sample Rural Municipality", cfg.PlaceName)
	assert.Equal(t, []string{"https://profile.example.gov.np"}, cfg.CORSOrigins)
	assert.Equal(t, "ward-media", cfg.MinioBucket)
	assert.True(t, cfg.MinioUseSSL)
}

func TestLoadRejectsNonPositiveMaxWard(t *testing.T) {
	t.Setenv("PROFILE_CONFIG", "")
	t.Setenv("PROFILE_MAX_WARD", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadReportsBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddr="), 0o600))
	t.Setenv("PROFILE_CONFIG", path)

	_, err := Load()
	require.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a , ,b "))
}
