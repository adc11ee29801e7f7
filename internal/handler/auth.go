package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/miniapp-auth/internal/apperror"
	"github.com/sakif/miniapp-auth/internal/auth"
	"github.com/sakif/miniapp-auth/internal/service"
)

// maxLoginBody caps the login request body. Real init data is a few KB.
const maxLoginBody = 64 << 10

// TelegramLoginer runs the Mini-App login flow. Implemented by
// *service.AuthService.
type TelegramLoginer interface {
	LoginWithTelegram(ctx context.Context, initData string) (*service.AuthResult, error)
}

// CookiePolicy controls the attributes of the session cookie.
//
// Mini-Apps are embedded in Telegram's web view, which is a cross-site
// context, so production needs SameSite=None and therefore Secure.
// Local development over plain HTTP uses Lax instead.
type CookiePolicy struct {
	Secure   bool
	SameSite http.SameSite
}

// CookiePolicyFor returns the cookie policy for an environment name.
func CookiePolicyFor(environment string) CookiePolicy {
	if environment == auth.EnvProduction {
		return CookiePolicy{Secure: true, SameSite: http.SameSiteNoneMode}
	}
	return CookiePolicy{SameSite: http.SameSiteLaxMode}
}

// AuthHandler exchanges Telegram init data for a session cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleTelegramLogin → verify init data, store the user, set the cookie
//   - HandleLogout        → clear the cookie
type AuthHandler struct {
	login  TelegramLoginer
	cookie CookiePolicy
	// requireInitData is off in development, where any init_data logs in
	// as the development user, blank included.
	requireInitData bool
	logger          *slog.Logger
}

// NewAuthHandler derives the cookie policy and the init_data check from
// the environment name.
func NewAuthHandler(login TelegramLoginer, environment string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		login:           login,
		cookie:          CookiePolicyFor(environment),
		requireInitData: environment != auth.EnvDevelopment,
		logger:          logger,
	}
}

// TelegramLoginRequest is the body of POST /auth/telegram.
type TelegramLoginRequest struct {
	InitData string `json:"init_data"`
}

// TelegramLoginResponse is returned on a successful login. Timestamps are
// unix seconds.
type TelegramLoginResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// HandleTelegramLogin authenticates a Mini-App launch.
//
// HTTP: POST /auth/telegram
//
// FLOW:
//  1. Decode {"init_data": "..."}; malformed → 400, blank → 400 outside development
//  2. AuthService verifies, upserts and issues a token; bad init data → 401
//  3. Set the HttpOnly session cookie and report the token lifetime
func (h *AuthHandler) HandleTelegramLogin(w http.ResponseWriter, r *http.Request) {
	var req TelegramLoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "request body must be JSON with an init_data field",
		})
		return
	}

	if h.requireInitData && strings.TrimSpace(req.InitData) == "" {
		writeError(w, h.logger, apperror.ValidationFailed("init_data", "init_data is required"))
		return
	}

	result, err := h.login.LoginWithTelegram(r.Context(), req.InitData)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(result.ExpiresAt.Sub(result.IssuedAt).Seconds()),
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.SameSite,
	})

	writeJSON(w, http.StatusOK, TelegramLoginResponse{
		Status:    "success",
		Message:   "Telegram authentication successful",
		CreatedAt: result.IssuedAt.Unix(),
		ExpiresAt: result.ExpiresAt.Unix(),
	})
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless: the token stays valid until it expires, but
// without the cookie the browser can no longer present it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w, h.cookie)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "logged out"})
}

func clearSessionCookie(w http.ResponseWriter, policy CookiePolicy) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   policy.Secure,
		SameSite: policy.SameSite,
	})
}
