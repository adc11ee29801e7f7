// Package service contains the use cases of the application.
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates, orchestrates, owns transaction scope
//	Repository      → reads/writes the database inside a unit of work
//
// Services depend on ports (repository.UnitOfWorkFactory and the small
// interfaces declared next to each service), never on concrete storage or
// HTTP types. Every database touch goes through repository.WithUnitOfWork.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/miniapp-auth/internal/apperror"
	"github.com/sakif/miniapp-auth/internal/model"
	"github.com/sakif/miniapp-auth/internal/repository"
)

// UserService owns reads and writes of user profiles.
type UserService struct {
	newUoW repository.UnitOfWorkFactory
	logger *slog.Logger
}

func NewUserService(newUoW repository.UnitOfWorkFactory, logger *slog.Logger) *UserService {
	return &UserService{newUoW: newUoW, logger: logger}
}

// Ensure persists user, creating the row on first sight and replacing every
// attribute afterwards. It is the only write path for profiles.
func (s *UserService) Ensure(ctx context.Context, user model.User) (model.User, error) {
	var saved model.User
	err := repository.WithUnitOfWork(ctx, s.newUoW, func(uow repository.UnitOfWork) error {
		var err error
		saved, err = uow.Users().Save(ctx, user)
		return err
	})
	if err != nil {
		return model.User{}, fmt.Errorf("service/user: ensuring user %d: %w", user.ID(), err)
	}

	s.logger.Debug("user ensured", slog.Int64("user_id", user.ID().Int64()))
	return saved, nil
}

// Get returns the stored profile, or an apperror.ErrNotFound error.
func (s *UserService) Get(ctx context.Context, id model.UserID) (model.User, error) {
	var (
		user  model.User
		found bool
	)
	err := repository.WithUnitOfWork(ctx, s.newUoW, func(uow repository.UnitOfWork) error {
		var err error
		user, found, err = uow.Users().FindByID(ctx, id)
		return err
	})
	if err != nil {
		return model.User{}, fmt.Errorf("service/user: fetching user %d: %w", id, err)
	}
	if !found {
		return model.User{}, apperror.NotFound("user", id)
	}
	return user, nil
}

// Delete removes the stored profile. Deleting an unknown id is an
// apperror.ErrNotFound error.
func (s *UserService) Delete(ctx context.Context, id model.UserID) error {
	err := repository.WithUnitOfWork(ctx, s.newUoW, func(uow repository.UnitOfWork) error {
		return uow.Users().Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("service/user: deleting user %d: %w", id, err)
	}

	s.logger.Info("user deleted", slog.Int64("user_id", id.Int64()))
	return nil
}
