package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestParseEnv_ProcessEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg, nil, mapLookup(map[string]string{
		"DATABASE_URL":         "postgres://env/db",
		"JWT_SECRET":           "env-secret",
		"ACCESS_TOKEN_TTL":     "10m",
		"REFRESH_TOKEN_TTL":    "86400",
		"CACHE_TTL":            "120",
		"BCRYPT_COST":          "8",
		"MAIL_PORT":            "2525",
		"MAIL_TEST_RECIPIENT":  "qa@example.com",
		"CORS_ALLOWED_ORIGINS": "https://a.example, https://b.example,",
		"AVATAR_BACKEND":       "cloudinary",
	}))

	assert.Equal(t, "postgres://env/db", cfg.DatabaseDSN)
	assert.Equal(t, "env-secret", cfg.SecretKey)
	assert.Equal(t, 10*time.Minute, cfg.AccessTokenValidityDuration)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTokenValidityDuration)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 8, cfg.BcryptCost)
	assert.Equal(t, 2525, cfg.MailPort)
	assert.Equal(t, "qa@example.com", cfg.MailRedirectTo)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, AvatarBackendCloudinary, cfg.AvatarBackend)
	assert.Equal(t, ":8000", cfg.EndpointAddrHTTP, "unset keys keep defaults")
}

func TestParseEnv_DotenvFileLosesToRealEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nREDIS_URL=redis://file:6379/0\n"), 0o600))

	cfg := &Config{}
	parseEnv(cfg, []string{"-env", path}, mapLookup(map[string]string{"JWT_SECRET": "from-env"}))

	assert.Equal(t, "from-env", cfg.SecretKey)
	assert.Equal(t, "redis://file:6379/0", cfg.RedisURL)
}

func TestParseEnv_DefaultDotenvIsOptional(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NotPanics(t, func() { parseEnv(&Config{}, nil, mapLookup(nil)) })
}

func TestParseEnv_ExplicitMissingDotenvPanics(t *testing.T) {
	require.Panics(t, func() {
		parseEnv(&Config{}, []string{"-env", filepath.Join(t.TempDir(), "missing.env")}, mapLookup(nil))
	})
}

func TestParseEnv_MalformedValuesPanic(t *testing.T) {
	t.Chdir(t.TempDir())
	require.Panics(t, func() {
		parseEnv(&Config{}, nil, mapLookup(map[string]string{"CACHE_TTL": "forever"}))
	})
	require.Panics(t, func() {
		parseEnv(&Config{}, nil, mapLookup(map[string]string{"RETRY_ATTEMPTS": "many"}))
	})
}
