package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/miniapp-auth/internal/apperror"
	"github.com/sakif/miniapp-auth/internal/auth"
	"github.com/sakif/miniapp-auth/internal/model"
)

// UserProfiles reads and removes stored profiles. Implemented by
// *service.UserService.
type UserProfiles interface {
	Get(ctx context.Context, id model.UserID) (model.User, error)
	Delete(ctx context.Context, id model.UserID) error
}

// UserHandler serves the caller's own profile. Every route sits behind
// auth.Authenticate, so the user id always comes from the verified token.
type UserHandler struct {
	users  UserProfiles
	cookie CookiePolicy
	logger *slog.Logger
}

func NewUserHandler(users UserProfiles, cookie CookiePolicy, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, cookie: cookie, logger: logger}
}

// UserResponse is the public view of a profile. Absent optional fields are
// encoded as null.
type UserResponse struct {
	ID           int64   `json:"id"`
	FirstName    string  `json:"first_name"`
	LastName     *string `json:"last_name"`
	Username     *string `json:"username"`
	PhotoURL     *string `json:"photo_url"`
	LanguageCode *string `json:"language_code"`
}

func toUserResponse(u model.User) UserResponse {
	return UserResponse{
		ID:           u.ID().Int64(),
		FirstName:    u.FirstName().String(),
		LastName:     u.LastName().Ptr(),
		Username:     u.Username().Ptr(),
		PhotoURL:     u.PhotoURL().Ptr(),
		LanguageCode: u.LanguageCode().Ptr(),
	}
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /user/me
//
// A valid token whose user row has since been deleted answers 404.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, err := auth.RequireUserID(r.Context())
	if err != nil {
		writeError(w, h.logger, apperror.Unauthorized(msgUnauthorized, err))
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "User not found"})
			return
		}
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleDeleteMe removes the authenticated user's profile and clears the
// session cookie. A later login recreates the profile.
//
// HTTP: DELETE /user/me
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	id, err := auth.RequireUserID(r.Context())
	if err != nil {
		writeError(w, h.logger, apperror.Unauthorized(msgUnauthorized, err))
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "User not found"})
			return
		}
		writeError(w, h.logger, err)
		return
	}

	clearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}
