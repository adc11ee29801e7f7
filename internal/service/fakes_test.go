package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/sakif/miniapp-auth/internal/apperror"
	"github.com/sakif/miniapp-auth/internal/auth"
	"github.com/sakif/miniapp-auth/internal/model"
	"github.com/sakif/miniapp-auth/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================

// memStore is an in-memory database. Writes made through a memUoW are
// staged and only become visible on Commit.
type memStore struct {
	mu        sync.Mutex
	users     map[model.UserID]model.User
	saveErr   error
	commitErr error
	commits   int
	rollbacks int
}

func newMemStore() *memStore {
	return &memStore{users: make(map[model.UserID]model.User)}
}

func (s *memStore) factory() repository.UnitOfWorkFactory {
	return func() repository.UnitOfWork { return &memUoW{store: s} }
}

func (s *memStore) get(id model.UserID) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

type memUoW struct {
	store   *memStore
	state   repository.UnitOfWorkState
	staged  map[model.UserID]model.User
	deleted map[model.UserID]bool
}

func (u *memUoW) Begin(context.Context) error {
	if u.state != repository.StateIdle {
		return repository.ErrUnitOfWorkState
	}
	u.state = repository.StateActive
	u.staged = make(map[model.UserID]model.User)
	u.deleted = make(map[model.UserID]bool)
	return nil
}

func (u *memUoW) Users() repository.UserRepository { return memUsers{u} }

func (u *memUoW) Commit() error {
	if u.state != repository.StateActive {
		return repository.ErrUnitOfWorkState
	}
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		u.state = repository.StateRolledBack
		s.rollbacks++
		return s.commitErr
	}
	for id := range u.deleted {
		delete(s.users, id)
	}
	for id, user := range u.staged {
		s.users[id] = user
	}
	s.commits++
	u.state = repository.StateCommitted
	return nil
}

func (u *memUoW) Rollback() error {
	if u.state != repository.StateActive {
		return repository.ErrUnitOfWorkState
	}
	u.store.mu.Lock()
	u.store.rollbacks++
	u.store.mu.Unlock()
	u.state = repository.StateRolledBack
	return nil
}

func (u *memUoW) State() repository.UnitOfWorkState { return u.state }

type memUsers struct{ uow *memUoW }

func (r memUsers) FindByID(_ context.Context, id model.UserID) (model.User, bool, error) {
	if user, ok := r.uow.staged[id]; ok {
		return user, true, nil
	}
	if r.uow.deleted[id] {
		return model.User{}, false, nil
	}
	user, ok := r.uow.store.get(id)
	return user, ok, nil
}

func (r memUsers) Save(_ context.Context, user model.User) (model.User, error) {
	if err := r.uow.store.saveErr; err != nil {
		return model.User{}, err
	}
	r.uow.staged[user.ID()] = user
	delete(r.uow.deleted, user.ID())
	return user, nil
}

func (r memUsers) Delete(ctx context.Context, id model.UserID) error {
	if _, ok, _ := r.FindByID(ctx, id); !ok {
		return apperror.NotFound("user", id)
	}
	delete(r.uow.staged, id)
	r.uow.deleted[id] = true
	return nil
}

// =========================================================================
// OTHER FAKES
// =========================================================================

type fakeValidator struct {
	user *auth.WebAppUser
	err  error
}

func (f fakeValidator) Validate(string) (*auth.WebAppUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

type fakeChecker struct{ err error }

func (f fakeChecker) Check(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	return ctx.Err()
}

// slowChecker blocks until its context is done.
type slowChecker struct{}

func (slowChecker) Check(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

var errDatabaseDown = errors.New("database is on fire")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(s string) *string { return &s }
