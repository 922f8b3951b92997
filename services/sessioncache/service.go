package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arkhazla/authcore/config"
	"github.com/arkhazla/authcore/services/logging"
)

const keyPrefix = "session:refresh:"

// CachedSubject is the mirror of a subject keyed by its refresh token hash.
// The cache is a read accelerator only: token validity is always decided by
// the durable store, never by the presence of a mirror entry.
type CachedSubject struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Service struct {
	client *redis.Client
	config *config.Config
	logger *logging.Service
}

func NewService(client *redis.Client, cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		client: client,
		config: cfg,
		logger: logger,
	}
}

func key(tokenHash string) string {
	return keyPrefix + tokenHash
}

func (s *Service) Set(ctx context.Context, tokenHash string, subject CachedSubject, ttl time.Duration) error {
	if s.client == nil {
		return nil
	}

	if ttl <= 0 || ttl > s.config.Redis.MirrorTTL {
		ttl = s.config.Redis.MirrorTTL
	}

	payload, err := json.Marshal(subject)
	if err != nil {
		return fmt.Errorf("failed to encode session mirror: %w", err)
	}

	if err := s.client.Set(ctx, key(tokenHash), payload, ttl).Err(); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to prime session mirror", zap.Error(err))
		}
		return fmt.Errorf("failed to prime session mirror: %w", err)
	}

	return nil
}

func (s *Service) Get(ctx context.Context, tokenHash string) (*CachedSubject, bool, error) {
	if s.client == nil {
		return nil, false, nil
	}

	payload, err := s.client.Get(ctx, key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		if s.logger != nil {
			s.logger.Warn("session mirror lookup failed", zap.Error(err))
		}
		return nil, false, fmt.Errorf("session mirror lookup failed: %w", err)
	}

	var subject CachedSubject
	if err := json.Unmarshal(payload, &subject); err != nil {
		if s.logger != nil {
			s.logger.Warn("session mirror entry corrupt, evicting", zap.Error(err))
		}
		_ = s.client.Del(ctx, key(tokenHash)).Err()
		return nil, false, nil
	}

	return &subject, true, nil
}

func (s *Service) Delete(ctx context.Context, tokenHash string) error {
	if s.client == nil {
		return nil
	}

	if err := s.client.Del(ctx, key(tokenHash)).Err(); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to evict session mirror", zap.Error(err))
		}
		return fmt.Errorf("failed to evict session mirror: %w", err)
	}

	return nil
}
