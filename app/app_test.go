package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/arkhazla/authcore/config"
	"github.com/arkhazla/authcore/services/session"
)

type staticVerifier struct{}

func (staticVerifier) VerifyExternalProof(ctx context.Context, proof string) (string, error) {
	return "a@x.com", nil
}

func testAppConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "authcore-test"},
		Server: config.ServerConfig{
			Host: "localhost",
			Port: "0",
		},
		Log: config.LogConfig{
			Level:      "error",
			Format:     "console",
			OutputPath: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		JWT: config.JWTConfig{
			SecretKey:    "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6q7r8s9t0",
			Issuer:       "authcore-test",
			AccessExpiry: 15 * time.Minute,
		},
		RefreshToken: config.RefreshTokenConfig{
			Expiry:            720 * time.Hour,
			RotationThreshold: 168 * time.Hour,
		},
		Cookie: config.CookieConfig{
			Name: "refresh_token",
			Path: "/api",
		},
	}
}

func TestApp_StartStop(t *testing.T) {
	app := New(testAppConfig(), fx.Provide(func() session.IdentityVerifier {
		return staticVerifier{}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, app.Start(ctx))
	defer app.Stop()

	assert.NotNil(t, app.Config())
	assert.NotNil(t, app.Logger())
	assert.NotNil(t, app.DB())
	assert.NotNil(t, app.Server())
}
