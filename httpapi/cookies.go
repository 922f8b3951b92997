package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arkhazla/authcore/config"
)

// echoCookies adapts an echo request/response pair to the session service's
// CookieCarrier. The refresh cookie is http-only, same-site lax and scoped to
// the API path so the browser only ever presents it to the endpoints that can
// use it.
type echoCookies struct {
	ctx echo.Context
	cfg *config.Config
}

func newCookieCarrier(c echo.Context, cfg *config.Config) *echoCookies {
	return &echoCookies{
		ctx: c,
		cfg: cfg,
	}
}

func (e *echoCookies) SetRefreshCookie(value string, expiresAt time.Time) {
	e.ctx.SetCookie(&http.Cookie{
		Name:     e.cfg.Cookie.Name,
		Value:    value,
		Path:     e.cfg.Cookie.Path,
		Domain:   e.cfg.Cookie.Domain,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   e.cfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (e *echoCookies) ClearSessionCookies() {
	e.ctx.SetCookie(&http.Cookie{
		Name:     e.cfg.Cookie.Name,
		Value:    "",
		Path:     e.cfg.Cookie.Path,
		Domain:   e.cfg.Cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   e.cfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RefreshCookie reads the inbound refresh credential, empty when absent.
func (e *echoCookies) RefreshCookie() string {
	cookie, err := e.ctx.Cookie(e.cfg.Cookie.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
