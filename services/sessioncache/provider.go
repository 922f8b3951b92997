package sessioncache

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/arkhazla/authcore/config"
	"github.com/arkhazla/authcore/services/logging"
)

// ProvideRedisClient returns nil when no address is configured; the cache then
// degrades to a no-op, which is safe because it is never authoritative.
func ProvideRedisClient(cfg *config.Config, logger *logging.Service) *redis.Client {
	if cfg.Redis.Addr == "" {
		if logger != nil {
			logger.Info("redis not configured, session mirror disabled")
		}
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if logger != nil {
		logger.Info("redis session mirror enabled", zap.String("addr", cfg.Redis.Addr))
	}

	return client
}

func ProvideCacheService(client *redis.Client, cfg *config.Config, logger *logging.Service) *Service {
	return NewService(client, cfg, logger)
}

var Options = fx.Options(
	fx.Provide(ProvideRedisClient),
	fx.Provide(ProvideCacheService),
)
