package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arkhazla/authcore/config"
	"github.com/arkhazla/authcore/services/logging"
	"github.com/arkhazla/authcore/services/sessioncache"
	"github.com/arkhazla/authcore/services/subjects"
	"github.com/arkhazla/authcore/services/token"
	"github.com/arkhazla/authcore/services/tokenstore"
)

var (
	ErrInvalidIdentityProof = errors.New("invalid identity proof")
	ErrSubjectNotFound      = errors.New("subject not found")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	// ErrTokenUpdateFailed marks the rotation race: the stored hash vanished
	// between lookup and rotate. It is always wrapped in ErrInvalidRefreshToken
	// so callers cannot tell it apart from a forged or evicted token.
	ErrTokenUpdateFailed = errors.New("refresh token update failed")
)

// IdentityVerifier checks an external identity proof (for example a Google ID
// token) and yields the verified email. OAuth/OIDC mechanics live behind it.
type IdentityVerifier interface {
	VerifyExternalProof(ctx context.Context, proof string) (email string, err error)
}

// SubjectDirectory resolves pre-provisioned subjects inside the caller's
// transaction.
type SubjectDirectory interface {
	FindByEmail(tx *gorm.DB, email string) (*subjects.Subject, error)
}

// CookieCarrier abstracts the transport holding the refresh credential. The
// HTTP layer adapts it over the response; tests use an in-memory fake.
type CookieCarrier interface {
	SetRefreshCookie(value string, expiresAt time.Time)
	ClearSessionCookies()
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RotationDue reports whether a stored refresh token is close enough to expiry
// that the next refresh must mint a replacement. Pure in its inputs so the
// decision never drifts with cached state.
func RotationDue(storedExpiry, now time.Time, threshold time.Duration) bool {
	return storedExpiry.Sub(now) <= threshold
}

type Service struct {
	db        *gorm.DB
	config    *config.Config
	logger    *logging.Service
	tokens    *token.Service
	store     *tokenstore.Store
	cache     *sessioncache.Service
	verifier  IdentityVerifier
	directory SubjectDirectory
}

func NewService(
	db *gorm.DB,
	cfg *config.Config,
	logger *logging.Service,
	tokens *token.Service,
	store *tokenstore.Store,
	cache *sessioncache.Service,
	verifier IdentityVerifier,
	directory SubjectDirectory,
) *Service {
	return &Service{
		db:        db,
		config:    cfg,
		logger:    logger,
		tokens:    tokens,
		store:     store,
		cache:     cache,
		verifier:  verifier,
		directory: directory,
	}
}

// Login verifies the external identity proof, mints a token pair for the
// matching subject and persists the refresh token's hash. The store write runs
// in a single transaction; the cache mirror and cookie are set only after it
// commits.
func (s *Service) Login(ctx context.Context, cookies CookieCarrier, proof string, info tokenstore.SessionInfo) (*TokenPair, error) {
	email, err := s.verifier.VerifyExternalProof(ctx, proof)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("login failed - identity proof rejected", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidIdentityProof, err)
	}

	var pair *TokenPair
	var subject *subjects.Subject

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subject, err = s.directory.FindByEmail(tx, email)
		if err != nil {
			if errors.Is(err, subjects.ErrSubjectNotFound) {
				return ErrSubjectNotFound
			}
			return err
		}

		identity := token.Identity{
			ID:    subject.ID,
			Name:  subject.Name,
			Email: subject.Email,
		}

		accessToken, err := s.tokens.SignAccess(identity)
		if err != nil {
			return err
		}

		refreshData, err := s.tokens.SignRefresh(identity)
		if err != nil {
			return err
		}

		tokenHash := tokenstore.HashToken(refreshData.Token)
		if err := s.store.Save(tx, subject.ID, tokenHash, refreshData.ExpiresAt, info); err != nil {
			return err
		}

		pair = &TokenPair{
			AccessToken:      accessToken,
			RefreshToken:     refreshData.Token,
			RefreshExpiresAt: refreshData.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.primeMirror(ctx, tokenstore.HashToken(pair.RefreshToken), subject, pair.RefreshExpiresAt)

	if cookies != nil {
		cookies.SetRefreshCookie(pair.RefreshToken, pair.RefreshExpiresAt)
	}

	if s.logger != nil {
		s.logger.Info("login succeeded",
			zap.String("subject_id", subject.ID),
			zap.Time("refresh_expires_at", pair.RefreshExpiresAt))
	}

	return pair, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. When the
// stored record is within the rotation threshold the refresh token itself is
// replaced; otherwise the same token and its stored expiry are returned
// unchanged. Every failure is terminal for this call: retry policy belongs to
// the client-side coordinator.
func (s *Service) Refresh(ctx context.Context, cookies CookieCarrier, oldToken string) (*TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(oldToken)
	if err != nil {
		// A missing signing secret is a deployment fault, not a bad token.
		if errors.Is(err, token.ErrSecretNotConfigured) {
			return nil, err
		}
		if s.logger != nil {
			s.logger.Warn("refresh failed - token verification", zap.Error(err))
		}
		return nil, ErrInvalidRefreshToken
	}

	oldHash := tokenstore.HashToken(oldToken)
	identity := claims.Identity()

	var pair *TokenPair
	var rotated bool

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.store.FindByHash(tx, oldHash)
		if err != nil {
			if errors.Is(err, tokenstore.ErrTokenNotFound) {
				// Expired-and-evicted tokens are indistinguishable from forged
				// ones here.
				return ErrInvalidRefreshToken
			}
			return err
		}

		accessToken, err := s.tokens.SignAccess(identity)
		if err != nil {
			return err
		}

		if !RotationDue(record.ExpiresAt, time.Now(), s.config.RefreshToken.RotationThreshold) {
			pair = &TokenPair{
				AccessToken:      accessToken,
				RefreshToken:     oldToken,
				RefreshExpiresAt: record.ExpiresAt,
			}
			return nil
		}

		refreshData, err := s.tokens.SignRefresh(identity)
		if err != nil {
			return err
		}

		ok, err := s.store.Rotate(tx, oldHash, tokenstore.HashToken(refreshData.Token), refreshData.ExpiresAt)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent refresh or logout won the race on this hash.
			if s.logger != nil {
				s.logger.Warn("refresh failed - concurrent rotation detected",
					zap.String("subject_id", identity.ID))
			}
			return fmt.Errorf("%w: %w", ErrInvalidRefreshToken, ErrTokenUpdateFailed)
		}

		rotated = true
		pair = &TokenPair{
			AccessToken:      accessToken,
			RefreshToken:     refreshData.Token,
			RefreshExpiresAt: refreshData.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rotated {
		// Invalidate by the old hash, prime by the new one. Both explicit.
		if s.cache != nil {
			if err := s.cache.Delete(ctx, oldHash); err != nil && s.logger != nil {
				s.logger.Warn("failed to evict rotated session mirror", zap.Error(err))
			}
		}
		s.primeMirror(ctx, tokenstore.HashToken(pair.RefreshToken), &subjects.Subject{
			ID:    identity.ID,
			Name:  identity.Name,
			Email: identity.Email,
		}, pair.RefreshExpiresAt)

		if cookies != nil {
			cookies.SetRefreshCookie(pair.RefreshToken, pair.RefreshExpiresAt)
		}

		if s.logger != nil {
			s.logger.Info("refresh token rotated",
				zap.String("subject_id", identity.ID),
				zap.Time("refresh_expires_at", pair.RefreshExpiresAt))
		}
	}

	return pair, nil
}

// Logout deletes the stored record and evicts the mirror. It is idempotent and
// always clears the session cookies: removing the client-held credential takes
// priority over server-side state that may already be gone.
func (s *Service) Logout(ctx context.Context, cookies CookieCarrier, refreshToken string) error {
	if cookies != nil {
		defer cookies.ClearSessionCookies()
	}

	if refreshToken == "" {
		return nil
	}

	tokenHash := tokenstore.HashToken(refreshToken)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existed, err := s.store.Delete(tx, tokenHash)
		if err != nil {
			return err
		}
		if !existed && s.logger != nil {
			s.logger.Debug("logout for already-absent refresh token")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, tokenHash); err != nil && s.logger != nil {
			s.logger.Warn("failed to evict session mirror on logout", zap.Error(err))
		}
	}

	return nil
}

// primeMirror is best-effort: mirror failures are logged and swallowed because
// the cache is never consulted for token validity.
func (s *Service) primeMirror(ctx context.Context, tokenHash string, subject *subjects.Subject, expiresAt time.Time) {
	if s.cache == nil || subject == nil {
		return
	}

	err := s.cache.Set(ctx, tokenHash, sessioncache.CachedSubject{
		ID:    subject.ID,
		Name:  subject.Name,
		Email: subject.Email,
	}, time.Until(expiresAt))
	if err != nil && s.logger != nil {
		s.logger.Warn("failed to prime session mirror", zap.Error(err))
	}
}
