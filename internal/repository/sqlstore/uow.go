package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rs/xid"

	"github.com/sakif/miniapp-auth/internal/repository"
)

// compile-time check that *UnitOfWork implements repository.UnitOfWork
var _ repository.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork is one transaction on one connection pinned from the pool.
//
// Not safe for concurrent use; each request builds its own through
// DB.NewUnitOfWork.
type UnitOfWork struct {
	db     *DB
	id     xid.ID
	state  repository.UnitOfWorkState
	conn   *sql.Conn
	tx     *sql.Tx
	cancel context.CancelFunc
	users  *userRepo
}

// NewUnitOfWork returns an idle unit of work. Its method value satisfies
// repository.UnitOfWorkFactory.
func (db *DB) NewUnitOfWork() repository.UnitOfWork {
	u := &UnitOfWork{db: db, id: xid.New()}
	u.users = &userRepo{uow: u}
	return u
}

func (u *UnitOfWork) State() repository.UnitOfWorkState { return u.state }

func (u *UnitOfWork) Users() repository.UserRepository { return u.users }

// Begin pins a connection and opens a transaction on it. On failure the
// connection is released and the unit stays Idle.
func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.state != repository.StateIdle {
		return fmt.Errorf("%w: begin while %s", repository.ErrUnitOfWorkState, u.state)
	}

	if u.db.queryTimeout > 0 {
		ctx, u.cancel = context.WithTimeout(ctx, u.db.queryTimeout)
	}

	conn, err := u.db.conn.Conn(ctx)
	if err != nil {
		u.release()
		return fmt.Errorf("sqlstore: acquiring connection: %w", err)
	}
	u.conn = conn

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		u.release()
		return fmt.Errorf("sqlstore: beginning transaction: %w", err)
	}

	u.tx = tx
	u.state = repository.StateActive
	u.db.logger.Debug("unit of work started", slog.String("uow_id", u.id.String()))
	return nil
}

// Commit commits the transaction. A failed commit leaves the unit
// RolledBack; either way the connection is released.
func (u *UnitOfWork) Commit() error {
	if u.state != repository.StateActive {
		return fmt.Errorf("%w: commit while %s", repository.ErrUnitOfWorkState, u.state)
	}

	err := u.tx.Commit()
	u.release()

	if err != nil {
		u.state = repository.StateRolledBack
		u.db.logger.Warn("unit of work commit failed",
			slog.String("uow_id", u.id.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("sqlstore: commit: %w", err)
	}

	u.state = repository.StateCommitted
	u.db.logger.Debug("unit of work committed", slog.String("uow_id", u.id.String()))
	return nil
}

// Rollback discards the transaction and releases the connection.
func (u *UnitOfWork) Rollback() error {
	if u.state != repository.StateActive {
		return fmt.Errorf("%w: rollback while %s", repository.ErrUnitOfWorkState, u.state)
	}

	err := u.tx.Rollback()
	u.release()
	u.state = repository.StateRolledBack

	// A cancelled context already rolled the transaction back.
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("sqlstore: rollback: %w", err)
	}
	u.db.logger.Debug("unit of work rolled back", slog.String("uow_id", u.id.String()))
	return nil
}

// release returns the pinned connection to the pool and cancels the scope
// deadline. Safe to call more than once.
func (u *UnitOfWork) release() {
	if u.conn != nil {
		if err := u.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			u.db.logger.Warn("releasing connection",
				slog.String("uow_id", u.id.String()),
				slog.String("error", err.Error()),
			)
		}
		u.conn = nil
	}
	if u.cancel != nil {
		u.cancel()
		u.cancel = nil
	}
}

// querier returns the active transaction or an error outside Active.
func (u *UnitOfWork) querier() (*sql.Tx, error) {
	if u.state != repository.StateActive {
		return nil, fmt.Errorf("%w: repository used while %s", repository.ErrUnitOfWorkState, u.state)
	}
	return u.tx, nil
}
