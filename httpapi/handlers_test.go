package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/arkhazla/authcore/config"
	"github.com/arkhazla/authcore/services/session"
	"github.com/arkhazla/authcore/services/sessioncache"
	"github.com/arkhazla/authcore/services/subjects"
	"github.com/arkhazla/authcore/services/token"
	"github.com/arkhazla/authcore/services/tokenstore"
	"github.com/arkhazla/authcore/testutils"
)

type fakeVerifier struct {
	email string
	err   error
}

func (f *fakeVerifier) VerifyExternalProof(ctx context.Context, proof string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.email, nil
}

type handlerFixture struct {
	echo   *echo.Echo
	db     *gorm.DB
	config *config.Config
}

func setupHandler(t *testing.T, verifier session.IdentityVerifier) *handlerFixture {
	cfg := &config.Config{
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
		Redis: config.RedisConfig{
			MirrorTTL: 24 * time.Hour,
		},
	}

	db := testutils.SetupTestDB(t, &tokenstore.RefreshToken{}, &subjects.Subject{})
	rdb, _ := testutils.SetupTestRedis(t)

	tokens := token.NewService(cfg, nil)
	store := tokenstore.NewStore(cfg, nil)
	cache := sessioncache.NewService(rdb, cfg, nil)
	directory := subjects.NewDirectory(nil)

	require.NoError(t, directory.Provision(db, &subjects.Subject{
		ID:    "u1",
		Name:  "Test Subject",
		Email: "a@x.com",
	}))

	sessions := session.NewService(db, cfg, nil, tokens, store, cache, verifier, directory)

	e := echo.New()
	NewHandler(sessions, tokens, cfg, nil).RegisterRoutes(e)

	return &handlerFixture{echo: e, db: db, config: cfg}
}

type testEnvelope struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Data    struct {
		AccessToken      string    `json:"access_token"`
		RefreshToken     string    `json:"refresh_token"`
		RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	} `json:"data"`
}

func doJSON(fx *handlerFixture, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, testEnvelope) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	fx.echo.ServeHTTP(rec, req)

	var env testEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func refreshCookieFrom(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", name)
	return nil
}

func TestHandler_Login(t *testing.T) {
	t.Run("success sets cookie and returns tokens", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "a@x.com"})

		rec, env := doJSON(fx, http.MethodPost, "/api/users/login", map[string]string{"id_token": "proof"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "LOGIN_SUCCESS", env.Code)
		assert.NotEmpty(t, env.Data.AccessToken)
		assert.NotEmpty(t, env.Data.RefreshToken)

		cookie := refreshCookieFrom(t, rec, "refresh_token")
		assert.Equal(t, env.Data.RefreshToken, cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, "/api", cookie.Path)
	})

	t.Run("rejected identity proof", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{err: assert.AnError})

		rec, env := doJSON(fx, http.MethodPost, "/api/users/login", map[string]string{"id_token": "bad"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_IDENTITY_PROOF", env.Code)
	})

	t.Run("unknown subject", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "stranger@x.com"})

		rec, env := doJSON(fx, http.MethodPost, "/api/users/login", map[string]string{"id_token": "proof"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "USER_NOT_FOUND", env.Code)
	})

	t.Run("missing id_token", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "a@x.com"})

		rec, _ := doJSON(fx, http.MethodPost, "/api/users/login", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_Refresh(t *testing.T) {
	t.Run("far from expiry keeps the same refresh token", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "a@x.com"})

		loginRec, loginEnv := doJSON(fx, http.MethodPost, "/api/users/login", map[string]string{"id_token": "proof"})
		cookie := refreshCookieFrom(t, loginRec, "refresh_token")

		rec, env := doJSON(fx, http.MethodPost, "/api/users/refresh", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "TOKEN_REFRESHED", env.Code)
		assert.NotEmpty(t, env.Data.AccessToken)
		assert.Equal(t, loginEnv.Data.RefreshToken, env.Data.RefreshToken)
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("near expiry rotates and rewrites the cookie", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "a@x.com"})

		loginRec, loginEnv := doJSON(fx, http.MethodPost, "/api/users/login", map[string]string{"id_token": "proof"})
		cookie := refreshCookieFrom(t, loginRec, "refresh_token")

		err := fx.db.Model(&tokenstore.RefreshToken{}).
			Where("token_hash = ?", tokenstore.HashToken(loginEnv.Data.RefreshToken)).
			Update("expires_at", time.Now().Add(time.Hour)).Error
		require.NoError(t, err)

		rec, env := doJSON(fx, http.MethodPost, "/api/users/refresh", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEqual(t, loginEnv.Data.RefreshToken, env.Data.RefreshToken)

		newCookie := refreshCookieFrom(t, rec, "refresh_token")
		assert.Equal(t, env.Data.RefreshToken, newCookie.Value)

		// The replaced token is dead from this point on.
		replay, replayEnv := doJSON(fx, http.MethodPost, "/api/users/refresh", nil, cookie)
		assert.Equal(t, http.StatusUnauthorized, replay.Code)
		assert.Equal(t, "INVALID_REFRESH_TOKEN", replayEnv.Code)
	})

	t.Run("body field works for cookie-less clients", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "a@x.com"})

		_, loginEnv := doJSON(fx, http.MethodPost, "/api/users/login", map[string]string{"id_token": "proof"})

		rec, env := doJSON(fx, http.MethodPost, "/api/users/refresh",
			map[string]string{"refresh_token": loginEnv.Data.RefreshToken})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "TOKEN_REFRESHED", env.Code)
		assert.NotEmpty(t, env.Data.AccessToken)
	})

	t.Run("missing cookie", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "a@x.com"})

		rec, env := doJSON(fx, http.MethodPost, "/api/users/refresh", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_REFRESH_TOKEN", env.Code)
	})

	t.Run("garbage cookie", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "a@x.com"})

		rec, _ := doJSON(fx, http.MethodPost, "/api/users/refresh", nil, &http.Cookie{Name: "refresh_token", Value: "not-a-jwt"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandler_Me(t *testing.T) {
	t.Run("with access token", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "a@x.com"})

		_, loginEnv := doJSON(fx, http.MethodPost, "/api/users/login", map[string]string{"id_token": "proof"})

		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+loginEnv.Data.AccessToken)
		rec := httptest.NewRecorder()
		fx.echo.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":"u1"`)
		assert.Contains(t, rec.Body.String(), `"email":"a@x.com"`)
	})

	t.Run("without access token", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "a@x.com"})

		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		rec := httptest.NewRecorder()
		fx.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandler_Logout(t *testing.T) {
	t.Run("removes the session and clears the cookie", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "a@x.com"})

		loginRec, loginEnv := doJSON(fx, http.MethodPost, "/api/users/login", map[string]string{"id_token": "proof"})
		cookie := refreshCookieFrom(t, loginRec, "refresh_token")

		rec, env := doJSON(fx, http.MethodPost, "/api/users/logout", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "LOGOUT_SUCCESS", env.Code)

		cleared := refreshCookieFrom(t, rec, "refresh_token")
		assert.Equal(t, -1, cleared.MaxAge)

		var count int64
		fx.db.Model(&tokenstore.RefreshToken{}).
			Where("token_hash = ?", tokenstore.HashToken(loginEnv.Data.RefreshToken)).
			Count(&count)
		assert.Zero(t, count)
	})

	t.Run("body field works for cookie-less clients", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "a@x.com"})

		_, loginEnv := doJSON(fx, http.MethodPost, "/api/users/login", map[string]string{"id_token": "proof"})

		rec, _ := doJSON(fx, http.MethodPost, "/api/users/logout",
			map[string]string{"refresh_token": loginEnv.Data.RefreshToken})
		require.Equal(t, http.StatusOK, rec.Code)

		var count int64
		fx.db.Model(&tokenstore.RefreshToken{}).
			Where("token_hash = ?", tokenstore.HashToken(loginEnv.Data.RefreshToken)).
			Count(&count)
		assert.Zero(t, count)
	})

	t.Run("succeeds without a session", func(t *testing.T) {
		fx := setupHandler(t, &fakeVerifier{email: "a@x.com"})

		rec, _ := doJSON(fx, http.MethodPost, "/api/users/logout", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
