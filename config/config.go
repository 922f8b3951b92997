package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig          `envPrefix:"AUTHCORE_APP_"`
	Server       ServerConfig       `envPrefix:"AUTHCORE_SERVER_"`
	Log          LogConfig          `envPrefix:"AUTHCORE_LOG_"`
	Database     DatabaseConfig     `envPrefix:"AUTHCORE_DB_"`
	JWT          JWTConfig          `envPrefix:"AUTHCORE_JWT_"`
	RefreshToken RefreshTokenConfig `envPrefix:"AUTHCORE_REFRESH_"`
	Cookie       CookieConfig       `envPrefix:"AUTHCORE_COOKIE_"`
	Redis        RedisConfig        `envPrefix:"AUTHCORE_REDIS_"`
	Client       ClientConfig       `envPrefix:"AUTHCORE_CLIENT_"`
}

type AppConfig struct {
	Name        string `env:"NAME" envDefault:"authcore"`
	URL         string `env:"URL" envDefault:"http://localhost:8080"`
	Environment string `env:"ENV" envDefault:"development"`
}

type ServerConfig struct {
	Host           string   `env:"HOST" envDefault:"localhost"`
	Port           string   `env:"PORT" envDefault:"8080"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

type LogConfig struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	Format     string `env:"FORMAT" envDefault:"json"`
	OutputPath string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"authcore.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type JWTConfig struct {
	SecretKey    string        `env:"SECRET"`
	Issuer       string        `env:"ISSUER" envDefault:"authcore"`
	AccessExpiry time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
}

type RefreshTokenConfig struct {
	Expiry            time.Duration `env:"EXPIRY" envDefault:"720h"`
	RotationThreshold time.Duration `env:"ROTATION_THRESHOLD" envDefault:"168h"`
	CleanupInterval   time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
}

type CookieConfig struct {
	Name   string `env:"NAME" envDefault:"refresh_token"`
	Path   string `env:"PATH" envDefault:"/api"`
	Domain string `env:"DOMAIN"`
	Secure bool   `env:"SECURE" envDefault:"false"`
}

type RedisConfig struct {
	Addr      string        `env:"ADDR"`
	Password  string        `env:"PASSWORD"`
	DB        int           `env:"DB" envDefault:"0"`
	MirrorTTL time.Duration `env:"MIRROR_TTL" envDefault:"24h"`
}

type ClientConfig struct {
	RefreshTimeout time.Duration `env:"REFRESH_TIMEOUT" envDefault:"10s"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	return env.Parse(cfg)
}

var weakSecretPatterns = []string{
	"secret",
	"password",
	"changeme",
	"default",
	"example",
}

// Validate rejects obviously misconfigured values. An empty JWT secret is
// allowed here: the token service fails at first use instead, so commands that
// never sign tokens can still start.
func (c *Config) Validate() error {
	if c.JWT.SecretKey != "" {
		if len(c.JWT.SecretKey) < 32 {
			return fmt.Errorf("JWT secret key must be at least 32 characters long")
		}
		lower := strings.ToLower(c.JWT.SecretKey)
		for _, pattern := range weakSecretPatterns {
			if strings.Contains(lower, pattern) {
				return fmt.Errorf("JWT secret key contains weak patterns")
			}
		}
	}

	if c.RefreshToken.RotationThreshold >= c.RefreshToken.Expiry {
		return fmt.Errorf("refresh rotation threshold must be shorter than refresh expiry")
	}

	return nil
}
