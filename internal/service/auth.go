package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/miniapp-auth/internal/apperror"
	"github.com/sakif/miniapp-auth/internal/auth"
	"github.com/sakif/miniapp-auth/internal/model"
)

// InitDataValidator verifies Mini-App init data. Implemented by
// *auth.TelegramValidator.
type InitDataValidator interface {
	Validate(raw string) (*auth.WebAppUser, error)
}

// TokenIssuer signs session tokens. Implemented by *auth.TokenService.
type TokenIssuer interface {
	Issue(subject string) (auth.IssuedToken, error)
}

// UserEnsurer persists a profile. Implemented by *UserService.
type UserEnsurer interface {
	Ensure(ctx context.Context, user model.User) (model.User, error)
}

// AuthService runs the Telegram login flow:
//
//	init data → validator → model.User → UserService.Ensure → session token
type AuthService struct {
	validator InitDataValidator
	users     UserEnsurer
	tokens    TokenIssuer
	logger    *slog.Logger
}

func NewAuthService(
	validator InitDataValidator,
	users UserEnsurer,
	tokens TokenIssuer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		validator: validator,
		users:     users,
		tokens:    tokens,
		logger:    logger,
	}
}

// AuthResult bundles the stored user and the issued session token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	User      model.User
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// LoginWithTelegram authenticates initData and returns a session for the
// asserted user.
//
// A payload that fails verification, or whose user fields fail value-object
// validation, yields an apperror.ErrUnauthorized error. Anything else
// (storage, signing) is returned wrapped as an internal fault.
func (s *AuthService) LoginWithTelegram(ctx context.Context, initData string) (*AuthResult, error) {
	tgUser, err := s.validator.Validate(initData)
	if err != nil {
		return nil, apperror.Unauthorized("invalid init data", err)
	}

	user, err := model.BuildUser(model.UserInput{
		ID:           tgUser.ID,
		FirstName:    tgUser.FirstName,
		LastName:     tgUser.LastName,
		Username:     tgUser.Username,
		LanguageCode: tgUser.LanguageCode,
		PhotoURL:     tgUser.PhotoURL,
	})
	if err != nil {
		return nil, apperror.Unauthorized("invalid init data", err)
	}

	saved, err := s.users.Ensure(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	issued, err := s.tokens.Issue(saved.ID().String())
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %d: %w", saved.ID(), err)
	}

	s.logger.Info("user authenticated via Telegram", slog.Int64("user_id", saved.ID().Int64()))

	return &AuthResult{
		User:      saved,
		Token:     issued.Token,
		IssuedAt:  issued.IssuedAt,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}
