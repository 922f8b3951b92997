package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mileusna/useragent"
	"go.uber.org/zap"

	"github.com/arkhazla/authcore/config"
	"github.com/arkhazla/authcore/middleware/auth"
	"github.com/arkhazla/authcore/middleware/ratelimit"
	"github.com/arkhazla/authcore/services/logging"
	"github.com/arkhazla/authcore/services/session"
	"github.com/arkhazla/authcore/services/token"
	"github.com/arkhazla/authcore/services/tokenstore"
)

type Handler struct {
	sessions *session.Service
	tokens   *token.Service
	config   *config.Config
	logger   *logging.Service
}

func NewHandler(sessions *session.Service, tokens *token.Service, cfg *config.Config, logger *logging.Service) *Handler {
	return &Handler{
		sessions: sessions,
		tokens:   tokens,
		config:   cfg,
		logger:   logger,
	}
}

// RegisterRoutes mounts the session endpoints under /api/users with a shared
// per-IP rate limit on the issuance paths.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	limiter := ratelimit.Middleware(&ratelimit.Config{
		Rate:   30,
		Period: time.Minute,
	})

	group := e.Group("/api/users", limiter)
	group.POST("/login", h.Login)
	group.POST("/refresh", h.Refresh)
	group.POST("/logout", h.Logout)
	group.GET("/me", h.Me, auth.RequireAccessToken(h.tokens))
}

type loginRequest struct {
	IDToken string `json:"id_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil || req.IDToken == "" {
		return sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "id_token is required")
	}

	cookies := newCookieCarrier(c, h.config)
	pair, err := h.sessions.Login(c.Request().Context(), cookies, req.IDToken, sessionInfoFromRequest(c))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidIdentityProof):
			return sendError(c, http.StatusUnauthorized, "INVALID_IDENTITY_PROOF", "Failed to verify identity token")
		case errors.Is(err, session.ErrSubjectNotFound):
			return sendError(c, http.StatusNotFound, "USER_NOT_FOUND", "User with this email does not exist")
		default:
			if h.logger != nil {
				h.logger.Error("login failed", zap.Error(err))
			}
			return sendError(c, http.StatusInternalServerError, "LOGIN_ERROR", "An error occurred during login")
		}
	}

	return sendSuccess(c, http.StatusOK, "LOGIN_SUCCESS", "Login successful", tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

func (h *Handler) Refresh(c echo.Context) error {
	cookies := newCookieCarrier(c, h.config)

	oldToken := refreshTokenFromRequest(c, cookies)
	if oldToken == "" {
		return sendError(c, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired")
	}

	pair, err := h.sessions.Refresh(c.Request().Context(), cookies, oldToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return sendError(c, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired")
		}
		if h.logger != nil {
			h.logger.Error("refresh failed", zap.Error(err))
		}
		return sendError(c, http.StatusInternalServerError, "REFRESH_ERROR", "An error occurred during token refresh")
	}

	return sendSuccess(c, http.StatusOK, "TOKEN_REFRESHED", "Token refreshed successfully", tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

// Logout always reports success: what matters to the caller is that the
// client-held credential is gone, even when server-side state already was.
func (h *Handler) Logout(c echo.Context) error {
	cookies := newCookieCarrier(c, h.config)

	if err := h.sessions.Logout(c.Request().Context(), cookies, refreshTokenFromRequest(c, cookies)); err != nil {
		if h.logger != nil {
			h.logger.Error("logout failed to remove server-side session", zap.Error(err))
		}
	}

	return sendSuccess(c, http.StatusOK, "LOGOUT_SUCCESS", "Logout successful", nil)
}

// Me reports the identity carried by the presented access token. It never
// touches the database.
func (h *Handler) Me(c echo.Context) error {
	identity := auth.GetIdentity(c)

	return sendSuccess(c, http.StatusOK, "CURRENT_USER", "Current user", map[string]any{
		"id":    identity.ID,
		"name":  identity.Name,
		"email": identity.Email,
	})
}

// refreshTokenFromRequest prefers the cookie; non-browser clients may carry
// the token in a refresh_token body field instead.
func refreshTokenFromRequest(c echo.Context, cookies *echoCookies) string {
	if tok := cookies.RefreshCookie(); tok != "" {
		return tok
	}

	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

func sessionInfoFromRequest(c echo.Context) tokenstore.SessionInfo {
	ua := useragent.Parse(c.Request().UserAgent())

	return tokenstore.SessionInfo{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		DeviceInfo: map[string]any{
			"os":      ua.OS,
			"browser": ua.Name,
			"mobile":  ua.Mobile,
		},
	}
}
