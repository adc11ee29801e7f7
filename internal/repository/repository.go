// Package repository declares the storage ports used by the service layer.
//
// Every read and write happens inside a UnitOfWork: one transaction on one
// pinned connection. Services never open a unit of work by hand; they call
// WithUnitOfWork, which guarantees commit-or-rollback and connection release
// on every exit path.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/miniapp-auth/internal/model"
)

// UserRepository persists users. Implementations are bound to a single
// unit of work and must not be used after it ends.
type UserRepository interface {
	// FindByID returns (user, true, nil) if found and (User{}, false, nil)
	// if no row exists.
	FindByID(ctx context.Context, id model.UserID) (model.User, bool, error)
	// Save inserts or fully updates the row for user.ID() and returns the
	// stored state.
	Save(ctx context.Context, user model.User) (model.User, error)
	// Delete removes the row, failing with apperror.ErrNotFound when absent.
	Delete(ctx context.Context, id model.UserID) error
}

// UnitOfWorkState tracks the lifecycle of a unit of work.
type UnitOfWorkState int

const (
	StateIdle UnitOfWorkState = iota
	StateActive
	StateCommitted
	StateRolledBack
)

func (s UnitOfWorkState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("UnitOfWorkState(%d)", int(s))
	}
}

// ErrUnitOfWorkState is returned for a transition that is not allowed from
// the current state (double Begin, Commit before Begin, and so on).
var ErrUnitOfWorkState = errors.New("repository: invalid unit of work state")

// UnitOfWork is a single transactional scope.
//
// Lifecycle: Idle -Begin-> Active -Commit-> Committed
//
//	                        \-Rollback-> RolledBack
//
// A failed Commit also ends in RolledBack. A failed Begin leaves the unit
// Idle. The underlying connection is released whenever the unit leaves
// Active, whatever the outcome.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Users() UserRepository
	Commit() error
	Rollback() error
	State() UnitOfWorkState
}

// UnitOfWorkFactory returns a fresh, idle unit of work. Units are never
// shared between requests.
type UnitOfWorkFactory func() UnitOfWork

// WithUnitOfWork runs fn inside a new unit of work. fn's error (or panic)
// rolls the unit back; otherwise it is committed. A rollback failure is
// joined onto fn's error; a panic is re-raised after rollback.
func WithUnitOfWork(ctx context.Context, newUoW UnitOfWorkFactory, fn func(uow UnitOfWork) error) error {
	uow := newUoW()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("repository: begin unit of work: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = uow.Rollback()
			panic(p)
		}
	}()

	if err := fn(uow); err != nil {
		if rbErr := uow.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("repository: rollback: %w", rbErr))
		}
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("repository: commit unit of work: %w", err)
	}
	return nil
}
