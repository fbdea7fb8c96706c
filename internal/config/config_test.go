package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverNone, cfg.DatabaseDriver)
	assert.Equal(t, ProviderNone, cfg.StorageProvider)
	assert.Equal(t, "gemini-1.5-flash", cfg.AIModel)
	assert.Equal(t, "us-central1", cfg.GoogleLocation)
	assert.Equal(t, 30*time.Second, cfg.AITimeout)
	assert.Equal(t, []string{"guest", "test_user"}, cfg.GuestUserMarkers)
	assert.Equal(t, "guest_user", cfg.DefaultUserID)
	assert.Equal(t, "meal-images", cfg.SupabaseStorageBucket)
	assert.Equal(t, "nutrition-scanner-uploads", cfg.GCSBucketName)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/kcalify?sslmode=disable")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_PUBLISHABLE_KEY", "anon-key")
	t.Setenv("SUPABASE_JWT_SECRET", "secret")
	t.Setenv("AI_TIMEOUT", "5s")
	t.Setenv("GUEST_USER_MARKERS", " demo , anon ")
	t.Setenv("STORAGE_REQUIRED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DatabaseDriver)
	assert.Equal(t, ProviderSupabase, cfg.StorageProvider)
	assert.Equal(t, 5*time.Second, cfg.AITimeout)
	assert.Equal(t, []string{"demo", "anon"}, cfg.GuestUserMarkers)
	assert.True(t, cfg.StorageRequired)
	assert.True(t, cfg.AuthEnabled())
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kcalify.yaml")
	content := []byte(`
database:
  driver: sqlite
  sqlitepath: /tmp/meals.db
storage:
  provider: gcs
  gcsbucket: my-bucket
ai:
  timeout: 12s
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "/tmp/meals.db", cfg.SQLitePath)
	assert.Equal(t, ProviderGCS, cfg.StorageProvider)
	assert.Equal(t, "my-bucket", cfg.GCSBucketName)
	assert.Equal(t, 12*time.Second, cfg.AITimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kcalify.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"7000\"\n"), 0o600))
	t.Setenv("PORT", "7001")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7001", cfg.Port)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad port", "PORT", "http"},
		{"bad timeout", "AI_TIMEOUT", "soon"},
		{"bad driver", "DATABASE_DRIVER", "mysql"},
		{"bad bool", "STORAGE_REQUIRED", "maybe"},
		{"bad temperature", "AI_TEMPERATURE", "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DatabaseDriver:  DriverNone,
			StorageProvider: ProviderNone,
			AITimeout:       time.Second,
			MaxUploadBytes:  1024,
			DefaultUserID:   "guest_user",
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"postgres without url", func(c *Config) { c.DatabaseDriver = DriverPostgres }},
		{"supabase driver without credentials", func(c *Config) { c.DatabaseDriver = DriverSupabase }},
		{"supabase storage without credentials", func(c *Config) { c.StorageProvider = ProviderSupabase }},
		{"gcs without bucket", func(c *Config) { c.StorageProvider = ProviderGCS }},
		{"required storage without provider", func(c *Config) { c.StorageRequired = true }},
		{"zero timeout", func(c *Config) { c.AITimeout = 0 }},
		{"burst without tokens", func(c *Config) { c.ScanRateLimit = 1 }},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
