package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	err := LoadConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "authcore", cfg.App.Name)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpiry)
	assert.Equal(t, 720*time.Hour, cfg.RefreshToken.Expiry)
	assert.Equal(t, 168*time.Hour, cfg.RefreshToken.RotationThreshold)
	assert.Equal(t, "refresh_token", cfg.Cookie.Name)
	assert.Equal(t, "/api", cfg.Cookie.Path)
	assert.Equal(t, 10*time.Second, cfg.Client.RefreshTimeout)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6q7r8s9t0")
	t.Setenv("AUTHCORE_JWT_ACCESS_EXPIRY", "30m")
	t.Setenv("AUTHCORE_REFRESH_EXPIRY", "48h")
	t.Setenv("AUTHCORE_COOKIE_SECURE", "true")

	cfg := &Config{}
	err := LoadConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6q7r8s9t0", cfg.JWT.SecretKey)
	assert.Equal(t, 30*time.Minute, cfg.JWT.AccessExpiry)
	assert.Equal(t, 48*time.Hour, cfg.RefreshToken.Expiry)
	assert.True(t, cfg.Cookie.Secure)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "empty secret is allowed at load time",
			mutate: func(c *Config) { c.JWT.SecretKey = "" },
		},
		{
			name:   "strong secret",
			mutate: func(c *Config) { c.JWT.SecretKey = "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6q7r8s9t0" },
		},
		{
			name:    "short secret",
			mutate:  func(c *Config) { c.JWT.SecretKey = "tooshort" },
			wantErr: true,
			errMsg:  "JWT secret key must be at least 32 characters long",
		},
		{
			name:    "weak secret",
			mutate:  func(c *Config) { c.JWT.SecretKey = "secretsecretsecretsecretsecretsecret" },
			wantErr: true,
			errMsg:  "JWT secret key contains weak patterns",
		},
		{
			name: "rotation threshold longer than expiry",
			mutate: func(c *Config) {
				c.RefreshToken.Expiry = time.Hour
				c.RefreshToken.RotationThreshold = 2 * time.Hour
			},
			wantErr: true,
			errMsg:  "refresh rotation threshold must be shorter than refresh expiry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				RefreshToken: RefreshTokenConfig{
					Expiry:            720 * time.Hour,
					RotationThreshold: 168 * time.Hour,
				},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
