package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/miniapp-auth/internal/apperror"
	"github.com/sakif/miniapp-auth/internal/auth"
	"github.com/sakif/miniapp-auth/internal/handler"
	"github.com/sakif/miniapp-auth/internal/model"
	"github.com/sakif/miniapp-auth/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ptr(s string) *string { return &s }

// =========================================================================
// FAKES
// =========================================================================

type fakeLoginer struct {
	called      bool
	gotInitData string
	result      *service.AuthResult
	err         error
}

func (f *fakeLoginer) LoginWithTelegram(_ context.Context, initData string) (*service.AuthResult, error) {
	f.called = true
	f.gotInitData = initData
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeProfiles struct {
	users     map[model.UserID]model.User
	err       error
	deletedID model.UserID
}

func (f *fakeProfiles) Get(_ context.Context, id model.UserID) (model.User, error) {
	if f.err != nil {
		return model.User{}, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return model.User{}, apperror.NotFound("user", id)
	}
	return u, nil
}

func (f *fakeProfiles) Delete(_ context.Context, id model.UserID) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	f.deletedID = id
	return nil
}

type fakeHealth struct{ status service.HealthStatus }

func (f fakeHealth) Check(context.Context) service.HealthStatus { return f.status }

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatalf("no %q cookie in response", auth.CookieName)
	return nil
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

// =========================================================================
// POST /auth/telegram
// =========================================================================

func TestAuthHandler_HandleTelegramLogin(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	ann, err := model.BuildUser(model.UserInput{ID: 42, FirstName: "Ann"})
	require.NoError(t, err)

	t.Run("success sets cookie", func(t *testing.T) {
		login := &fakeLoginer{result: &service.AuthResult{
			User:      ann,
			Token:     "header.claims.sig",
			IssuedAt:  issued,
			ExpiresAt: issued.Add(7 * 24 * time.Hour),
		}}
		h := handler.NewAuthHandler(login, auth.EnvProduction, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/auth/telegram", bytes.NewBufferString(`{"init_data":"query_id=1&hash=ab"}`))
		rr := httptest.NewRecorder()
		h.HandleTelegramLogin(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "query_id=1&hash=ab", login.gotInitData)

		var body handler.TelegramLoginResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, "success", body.Status)
		assert.Equal(t, "Telegram authentication successful", body.Message)
		assert.Equal(t, issued.Unix(), body.CreatedAt)
		assert.Equal(t, issued.Add(7*24*time.Hour).Unix(), body.ExpiresAt)

		c := sessionCookie(t, rr)
		assert.Equal(t, "header.claims.sig", c.Value)
		assert.Equal(t, "/", c.Path)
		assert.Equal(t, 7*24*60*60, c.MaxAge)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
	})

	t.Run("development cookie is lax and not secure", func(t *testing.T) {
		login := &fakeLoginer{result: &service.AuthResult{
			User: ann, Token: "t", IssuedAt: issued, ExpiresAt: issued.Add(24 * time.Hour),
		}}
		h := handler.NewAuthHandler(login, auth.EnvDevelopment, testLogger())

		rr := httptest.NewRecorder()
		h.HandleTelegramLogin(rr, httptest.NewRequest(http.MethodPost, "/auth/telegram", bytes.NewBufferString(`{"init_data":"x"}`)))

		require.Equal(t, http.StatusOK, rr.Code)
		c := sessionCookie(t, rr)
		assert.False(t, c.Secure)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	})

	t.Run("invalid request body", func(t *testing.T) {
		h := handler.NewAuthHandler(&fakeLoginer{}, auth.EnvProduction, testLogger())

		rr := httptest.NewRecorder()
		h.HandleTelegramLogin(rr, httptest.NewRequest(http.MethodPost, "/auth/telegram", bytes.NewBufferString(`{"init_data":`)))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("empty init data", func(t *testing.T) {
		login := &fakeLoginer{}
		h := handler.NewAuthHandler(login, auth.EnvProduction, testLogger())

		rr := httptest.NewRecorder()
		h.HandleTelegramLogin(rr, httptest.NewRequest(http.MethodPost, "/auth/telegram", bytes.NewBufferString(`{"init_data":"  "}`)))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "validation_error", decodeError(t, rr).Error)
		assert.Empty(t, login.gotInitData, "service must not be called")
		assert.False(t, login.called)
	})

	t.Run("development passes blank init data to the service", func(t *testing.T) {
		login := &fakeLoginer{result: &service.AuthResult{
			User: ann, Token: "t", IssuedAt: issued, ExpiresAt: issued.Add(24 * time.Hour),
		}}
		h := handler.NewAuthHandler(login, auth.EnvDevelopment, testLogger())

		rr := httptest.NewRecorder()
		h.HandleTelegramLogin(rr, httptest.NewRequest(http.MethodPost, "/auth/telegram", bytes.NewBufferString(`{"init_data":""}`)))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, login.called)
		assert.NotNil(t, sessionCookie(t, rr))
	})

	t.Run("rejected init data is a generic 401", func(t *testing.T) {
		cause := errors.New("hash mismatch for secret 0xdeadbeef")
		login := &fakeLoginer{err: apperror.Unauthorized("invalid init data", cause)}
		h := handler.NewAuthHandler(login, auth.EnvProduction, testLogger())

		rr := httptest.NewRecorder()
		h.HandleTelegramLogin(rr, httptest.NewRequest(http.MethodPost, "/auth/telegram", bytes.NewBufferString(`{"init_data":"x"}`)))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.NotContains(t, rr.Body.String(), "deadbeef")
		assert.NotContains(t, rr.Body.String(), "hash")
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("unexpected failure is a generic 500", func(t *testing.T) {
		login := &fakeLoginer{err: errors.New("pq: relation \"users\" does not exist")}
		h := handler.NewAuthHandler(login, auth.EnvProduction, testLogger())

		rr := httptest.NewRecorder()
		h.HandleTelegramLogin(rr, httptest.NewRequest(http.MethodPost, "/auth/telegram", bytes.NewBufferString(`{"init_data":"x"}`)))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		body := decodeError(t, rr)
		assert.Equal(t, "internal_error", body.Error)
		assert.Equal(t, "Internal server error", body.Message)
	})
}

func TestAuthHandler_HandleLogout(t *testing.T) {
	h := handler.NewAuthHandler(&fakeLoginer{}, auth.EnvProduction, testLogger())

	rr := httptest.NewRecorder()
	h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	c := sessionCookie(t, rr)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

// =========================================================================
// /user/me
// =========================================================================

func TestUserHandler_HandleMe(t *testing.T) {
	ann, err := model.BuildUser(model.UserInput{
		ID:           42,
		FirstName:    "Ann",
		Username:     ptr("annlee"),
		LanguageCode: ptr("en"),
	})
	require.NoError(t, err)

	t.Run("returns profile with nulls", func(t *testing.T) {
		h := handler.NewUserHandler(&fakeProfiles{users: map[model.UserID]model.User{42: ann}}, handler.CookiePolicyFor(auth.EnvProduction), testLogger())

		req := httptest.NewRequest(http.MethodGet, "/user/me", nil)
		req = req.WithContext(auth.WithUserID(req.Context(), 42))
		rr := httptest.NewRecorder()
		h.HandleMe(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{
			"id": 42,
			"first_name": "Ann",
			"last_name": null,
			"username": "annlee",
			"photo_url": null,
			"language_code": "en"
		}`, rr.Body.String())
	})

	t.Run("deleted user is 404", func(t *testing.T) {
		h := handler.NewUserHandler(&fakeProfiles{users: map[model.UserID]model.User{}}, handler.CookiePolicyFor(auth.EnvProduction), testLogger())

		req := httptest.NewRequest(http.MethodGet, "/user/me", nil)
		req = req.WithContext(auth.WithUserID(req.Context(), 42))
		rr := httptest.NewRecorder()
		h.HandleMe(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "User not found", decodeError(t, rr).Message)
	})

	t.Run("no identity is 401", func(t *testing.T) {
		h := handler.NewUserHandler(&fakeProfiles{}, handler.CookiePolicyFor(auth.EnvProduction), testLogger())

		rr := httptest.NewRecorder()
		h.HandleMe(rr, httptest.NewRequest(http.MethodGet, "/user/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Unauthorized", decodeError(t, rr).Message)
	})

	t.Run("storage failure is 500", func(t *testing.T) {
		h := handler.NewUserHandler(&fakeProfiles{err: errors.New("database is locked")}, handler.CookiePolicyFor(auth.EnvProduction), testLogger())

		req := httptest.NewRequest(http.MethodGet, "/user/me", nil)
		req = req.WithContext(auth.WithUserID(req.Context(), 42))
		rr := httptest.NewRecorder()
		h.HandleMe(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "locked")
	})
}

func TestUserHandler_HandleDeleteMe(t *testing.T) {
	ann, err := model.BuildUser(model.UserInput{ID: 42, FirstName: "Ann"})
	require.NoError(t, err)

	profiles := &fakeProfiles{users: map[model.UserID]model.User{42: ann}}
	h := handler.NewUserHandler(profiles, handler.CookiePolicyFor(auth.EnvProduction), testLogger())

	req := httptest.NewRequest(http.MethodDelete, "/user/me", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), 42))
	rr := httptest.NewRecorder()
	h.HandleDeleteMe(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, model.UserID(42), profiles.deletedID)
	assert.Empty(t, sessionCookie(t, rr).Value)

	// Second delete: the row is gone.
	rr = httptest.NewRecorder()
	h.HandleDeleteMe(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =========================================================================
// /health
// =========================================================================

func TestHealthHandler_HandleHealth(t *testing.T) {
	checked := time.Unix(1_700_000_123, 0)

	t.Run("healthy", func(t *testing.T) {
		h := handler.NewHealthHandler(fakeHealth{service.HealthStatus{Database: true, CheckedAt: checked}}, testLogger())

		rr := httptest.NewRecorder()
		h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok","timestamp":1700000123}`, rr.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		h := handler.NewHealthHandler(fakeHealth{service.HealthStatus{Database: false, CheckedAt: checked}}, testLogger())

		rr := httptest.NewRecorder()
		h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "Database connection is not healthy", decodeError(t, rr).Message)
	})
}

// =========================================================================
// /docs, /openapi.json
// =========================================================================

func TestDocsHandler(t *testing.T) {
	h, err := handler.NewDocsHandler(testLogger())
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.HandleOpenAPI(rr, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.True(t, json.Valid(rr.Body.Bytes()))

	rr = httptest.NewRecorder()
	h.HandleDocs(rr, httptest.NewRequest(http.MethodGet, "/docs", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "<title>Backend API Documentation</title>")
}
