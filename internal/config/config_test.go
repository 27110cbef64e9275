package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ADMIN_CLIENT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "6012", cfg.HTTPPort)
	assert.Equal(t, "redis", cfg.SessionBackend)
	assert.Equal(t, "s3", cfg.UploadBackend)
	assert.Equal(t, 2048, cfg.MetadataBudget)
	assert.Equal(t, 50000, cfg.CSVMaxRows)
	assert.True(t, cfg.BulkSendAllowed)
	assert.False(t, cfg.AnnualLimitEnforced)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("ADMIN_CLIENT_SECRET", "")
	require.NoError(t, os.Unsetenv("ADMIN_CLIENT_SECRET"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"postgres without url", func(c *Config) { c.SessionBackend = "postgres" }, true},
		{"postgres with url", func(c *Config) {
			c.SessionBackend = "postgres"
			c.DatabaseURL = "postgres://localhost/notify"
		}, false},
		{"unknown session backend", func(c *Config) { c.SessionBackend = "memcached" }, true},
		{"s3 without bucket", func(c *Config) { c.UploadBucket = " " }, true},
		{"local uploads", func(c *Config) {
			c.UploadBackend = "local"
			c.UploadBucket = ""
		}, false},
		{"unknown upload backend", func(c *Config) { c.UploadBackend = "gcs" }, true},
		{"zero budget", func(c *Config) { c.MetadataBudget = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				SessionBackend: "redis",
				UploadBackend:  "s3",
				UploadBucket:   "bucket",
				MetadataBudget: 2048,
				CSVMaxRows:     50000,
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
