package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arkhazla/authcore/config"
	"github.com/arkhazla/authcore/services/logging"
)

var (
	ErrSecretNotConfigured = errors.New("JWT secret is not configured")
	ErrInvalidToken        = errors.New("invalid access token")
	ErrExpiredToken        = errors.New("access token has expired")
	ErrMalformedToken      = errors.New("malformed access token")
	ErrInvalidSignature    = errors.New("invalid token signature")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Identity is the subject principal embedded in every token. It is immutable
// once signed; changes to the underlying subject only surface in tokens minted
// afterwards.
type Identity struct {
	ID    string
	Name  string
	Email string
}

type Claims struct {
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{
		ID:    c.Subject,
		Name:  c.Name,
		Email: c.Email,
	}
}

// RefreshTokenData pairs a signed refresh token with the expiry encoded in its
// own exp claim, so callers persist exactly what verification will later accept.
type RefreshTokenData struct {
	Token     string
	ExpiresAt time.Time
}

type Service struct {
	config *config.Config
	logger *logging.Service
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		logger: logger,
	}
}

// secret is resolved lazily so a missing key fails at first signing or
// verification, not at startup.
func (s *Service) secret() ([]byte, error) {
	if s.config.JWT.SecretKey == "" {
		return nil, ErrSecretNotConfigured
	}
	return []byte(s.config.JWT.SecretKey), nil
}

func (s *Service) SignAccess(identity Identity) (string, error) {
	secret, err := s.secret()
	if err != nil {
		return "", err
	}

	now := time.Now()
	jti := uuid.New().String()
	claims := Claims{
		Name:      identity.Name,
		Email:     identity.Email,
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.config.JWT.Issuer,
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.JWT.AccessExpiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign access token", zap.Error(err))
		}
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

func (s *Service) SignRefresh(identity Identity) (*RefreshTokenData, error) {
	secret, err := s.secret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	// The jti makes two refresh tokens for the same subject distinct even when
	// minted within the same second. Expiry is truncated to seconds so the
	// returned ExpiresAt matches the encoded exp claim exactly.
	jti := uuid.New().String()
	expiresAt := now.Add(s.config.RefreshToken.Expiry).Truncate(time.Second)

	claims := Claims{
		Name:      identity.Name,
		Email:     identity.Email,
		TokenType: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.config.JWT.Issuer,
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign refresh token", zap.Error(err))
		}
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &RefreshTokenData{
		Token:     tokenString,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) VerifyAccess(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != TypeAccess {
		if s.logger != nil {
			s.logger.Warn("access token verification failed - wrong token type",
				zap.String("token_type", claims.TokenType))
		}
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *Service) VerifyRefresh(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		if errors.Is(err, ErrSecretNotConfigured) {
			return nil, err
		}
		// Forged, expired and malformed refresh tokens are deliberately
		// indistinguishable to callers.
		return nil, ErrInvalidRefreshToken
	}

	if claims.TokenType != TypeRefresh {
		if s.logger != nil {
			s.logger.Warn("refresh token verification failed - wrong token type",
				zap.String("token_type", claims.TokenType))
		}
		return nil, ErrInvalidRefreshToken
	}

	return claims, nil
}

func (s *Service) parse(tokenString string) (*Claims, error) {
	secret, err := s.secret()
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() == "none" {
			return nil, errors.New("'none' algorithm is not allowed")
		}

		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected algorithm: expected HS256, got %s", token.Method.Alg())
		}

		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}

		return secret, nil
	})

	if err != nil {
		if s.logger != nil {
			s.logger.Warn("token validation failed", zap.Error(err))
		}

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
