package tokenstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arkhazla/authcore/config"
	"github.com/arkhazla/authcore/services/logging"
)

var (
	ErrTokenNotFound = errors.New("refresh token not found")
)

// HashToken derives the storage key for a raw refresh token. Raw tokens are
// never persisted.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Store persists hashed refresh tokens. It holds no connection of its own:
// every method runs against the *gorm.DB handed in by the caller, which is how
// the session service scopes all mutations to one transaction.
type Store struct {
	config *config.Config
	logger *logging.Service
}

func NewStore(cfg *config.Config, logger *logging.Service) *Store {
	if logger != nil {
		logger.Info("initializing refresh token store",
			zap.Duration("token_expiry", cfg.RefreshToken.Expiry),
			zap.Duration("rotation_threshold", cfg.RefreshToken.RotationThreshold),
			zap.Duration("cleanup_interval", cfg.RefreshToken.CleanupInterval))
	}

	return &Store{
		config: cfg,
		logger: logger,
	}
}

func (s *Store) Save(tx *gorm.DB, subjectID, tokenHash string, expiresAt time.Time, info SessionInfo) error {
	deviceInfoJSON := ""
	if info.DeviceInfo != nil {
		if jsonBytes, err := json.Marshal(info.DeviceInfo); err == nil {
			deviceInfoJSON = string(jsonBytes)
		}
	}

	record := RefreshToken{
		SubjectID:  subjectID,
		TokenHash:  tokenHash,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now(),
		DeviceInfo: deviceInfoJSON,
	}

	if err := tx.Create(&record).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to store refresh token", zap.Error(err))
		}
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("refresh token stored",
			zap.String("subject_id", subjectID),
			zap.Time("expires_at", expiresAt))
	}

	return nil
}

// FindByHash returns the record for tokenHash, treating expired rows as absent.
// A caller must never see an expired record.
func (s *Store) FindByHash(tx *gorm.DB, tokenHash string) (*RefreshToken, error) {
	var record RefreshToken
	err := tx.Where("token_hash = ? AND expires_at > ?", tokenHash, time.Now()).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if s.logger != nil {
				s.logger.Debug("refresh token not found or expired")
			}
			return nil, ErrTokenNotFound
		}
		if s.logger != nil {
			s.logger.Error("refresh token lookup failed", zap.Error(err))
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &record, nil
}

// Rotate atomically replaces oldHash with newHash. The WHERE clause on the old
// hash makes two concurrent rotations race safely: the loser matches zero rows
// and gets false, never a silent success.
func (s *Store) Rotate(tx *gorm.DB, oldHash, newHash string, newExpiresAt time.Time) (bool, error) {
	result := tx.Model(&RefreshToken{}).
		Where("token_hash = ?", oldHash).
		Updates(map[string]any{
			"token_hash": newHash,
			"expires_at": newExpiresAt,
		})

	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to rotate refresh token", zap.Error(result.Error))
		}
		return false, fmt.Errorf("failed to rotate refresh token: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		if s.logger != nil {
			s.logger.Warn("refresh token rotation matched no rows")
		}
		return false, nil
	}

	if s.logger != nil {
		s.logger.Info("refresh token rotated",
			zap.String("old_hash", oldHash[:16]+"..."),
			zap.Time("new_expires_at", newExpiresAt))
	}

	return true, nil
}

func (s *Store) Delete(tx *gorm.DB, tokenHash string) (bool, error) {
	result := tx.Where("token_hash = ?", tokenHash).Delete(&RefreshToken{})

	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to delete refresh token", zap.Error(result.Error))
		}
		return false, fmt.Errorf("failed to delete refresh token: %w", result.Error)
	}

	if s.logger != nil {
		s.logger.Info("refresh token deleted",
			zap.String("token_hash", tokenHash[:16]+"..."),
			zap.Int64("affected_rows", result.RowsAffected))
	}

	return result.RowsAffected > 0, nil
}

func (s *Store) DeleteExpired(db *gorm.DB) (int64, error) {
	result := db.Where("expires_at < ?", time.Now()).Delete(&RefreshToken{})

	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to cleanup expired refresh tokens", zap.Error(result.Error))
		}
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", result.Error)
	}

	if s.logger != nil {
		if result.RowsAffected > 0 {
			s.logger.Info("cleaned up expired refresh tokens",
				zap.Int64("count", result.RowsAffected))
		} else {
			s.logger.Debug("no expired refresh tokens found to cleanup")
		}
	}

	return result.RowsAffected, nil
}

// StartCleanupWorker periodically removes rows that aged out without ever
// being rotated or deleted. FindByHash already hides them; this just keeps the
// table from growing without bound.
func (s *Store) StartCleanupWorker(db *gorm.DB) {
	go func() {
		ticker := time.NewTicker(s.config.RefreshToken.CleanupInterval)
		defer ticker.Stop()

		for range ticker.C {
			if _, err := s.DeleteExpired(db); err != nil && s.logger != nil {
				s.logger.Error("refresh token cleanup worker failed", zap.Error(err))
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info("started refresh token cleanup worker",
			zap.Duration("interval", s.config.RefreshToken.CleanupInterval))
	}
}
