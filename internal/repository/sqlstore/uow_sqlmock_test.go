package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/miniapp-auth/internal/apperror"
	"github.com/sakif/miniapp-auth/internal/model"
	"github.com/sakif/miniapp-auth/internal/repository"
)

// newMockDB wires a sqlmock pool as a PostgreSQL-dialect store so the
// rebound "$n" queries are what the mock sees.
func newMockDB(t *testing.T, opts Options) (*DB, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFromConn(conn, DialectPostgres, opts), conn, mock
}

var userRowColumns = []string{"id", "username", "first_name", "last_name", "language_code", "photo_url"}

func TestUnitOfWork_CommitFailureReleasesConnection(t *testing.T) {
	db, conn, mock := newMockDB(t, Options{})
	commitErr := errors.New("could not serialize access")

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(commitErr)

	uow := db.NewUnitOfWork()
	require.NoError(t, uow.Begin(context.Background()))
	assert.Equal(t, 1, conn.Stats().InUse)

	err := uow.Commit()
	assert.ErrorIs(t, err, commitErr)
	assert.Equal(t, repository.StateRolledBack, uow.State())
	assert.Equal(t, 0, conn.Stats().InUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_BeginFailureReleasesConnection(t *testing.T) {
	db, conn, mock := newMockDB(t, Options{})
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	uow := db.NewUnitOfWork()
	err := uow.Begin(context.Background())

	assert.Error(t, err)
	assert.Equal(t, repository.StateIdle, uow.State())
	assert.Equal(t, 0, conn.Stats().InUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_RollbackFailureReleasesConnection(t *testing.T) {
	db, conn, mock := newMockDB(t, Options{})
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection reset"))

	uow := db.NewUnitOfWork()
	require.NoError(t, uow.Begin(context.Background()))

	assert.Error(t, uow.Rollback())
	assert.Equal(t, repository.StateRolledBack, uow.State())
	assert.Equal(t, 0, conn.Stats().InUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_QueryTimeout(t *testing.T) {
	db, conn, mock := newMockDB(t, Options{QueryTimeout: 50 * time.Millisecond})
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, username, first_name, last_name, language_code, photo_url FROM users WHERE id = $1`)).
		WithArgs(int64(42)).
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows(userRowColumns))
	mock.ExpectRollback()

	err := repository.WithUnitOfWork(context.Background(), db.NewUnitOfWork, func(uow repository.UnitOfWork) error {
		_, _, err := uow.Users().FindByID(context.Background(), 42)
		return err
	})

	assert.Error(t, err)
	assert.Equal(t, 0, conn.Stats().InUse)
}

func TestSave_PostgresPlaceholders(t *testing.T) {
	db, _, mock := newMockDB(t, Options{})

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users \(id, username, first_name, last_name, language_code, photo_url\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\) ON CONFLICT \(id\) DO UPDATE SET`).
		WithArgs(int64(42), sqlmock.AnyArg(), "Ann", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(int64(42), nil, "Ann", nil, "en", nil))
	mock.ExpectCommit()

	ann, err := model.BuildUser(model.UserInput{ID: 42, FirstName: "Ann", LanguageCode: ptr("en")})
	require.NoError(t, err)

	var saved model.User
	err = repository.WithUnitOfWork(context.Background(), db.NewUnitOfWork, func(uow repository.UnitOfWork) error {
		var err error
		saved, err = uow.Users().Save(context.Background(), ann)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, ann, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByID_InvalidStoredRowIsAnError(t *testing.T) {
	db, _, mock := newMockDB(t, Options{})

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(int64(8), nil, "  ", nil, nil, nil))
	mock.ExpectRollback()

	err := repository.WithUnitOfWork(context.Background(), db.NewUnitOfWork, func(uow repository.UnitOfWork) error {
		_, _, err := uow.Users().FindByID(context.Background(), 8)
		return err
	})

	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_NotFound(t *testing.T) {
	db, _, mock := newMockDB(t, Options{})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM users WHERE id = $1`)).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repository.WithUnitOfWork(context.Background(), db.NewUnitOfWork, func(uow repository.UnitOfWork) error {
		return uow.Users().Delete(context.Background(), 5)
	})

	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheck_Mock(t *testing.T) {
	db, _, mock := newMockDB(t, Options{})

	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	assert.NoError(t, db.Check(context.Background()))

	mock.ExpectQuery(`SELECT 1`).WillReturnError(errors.New("connection refused"))
	assert.Error(t, db.Check(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

// expectPostgresMigrator queues the statements golang-migrate's postgres
// driver runs while attaching to an existing schema_migrations table.
func expectPostgresMigrator(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT CURRENT_DATABASE()`)).
		WillReturnRows(sqlmock.NewRows([]string{"current_database"}).AddRow("miniapp"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT CURRENT_SCHEMA()`)).
		WillReturnRows(sqlmock.NewRows([]string{"current_schema"}).AddRow("public"))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_lock(`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.tables`)).
		WithArgs("public", "schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_unlock(`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestWithMigrator_PostgresKeepsPoolOpen(t *testing.T) {
	db, conn, mock := newMockDB(t, Options{})
	ctx := context.Background()

	expectPostgresMigrator(mock)
	ran := false
	require.NoError(t, db.withMigrator(ctx, func(*migrate.Migrate) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	assert.Equal(t, 0, conn.Stats().InUse, "pinned migration connection must go back to the pool")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	assert.NoError(t, db.Check(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithMigrator_PostgresDriverFailureReleasesConnection(t *testing.T) {
	db, conn, mock := newMockDB(t, Options{})
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT CURRENT_DATABASE()`)).
		WillReturnError(errors.New("permission denied"))

	err := db.withMigrator(ctx, func(*migrate.Migrate) error {
		t.Fatal("migrator must not run")
		return nil
	})
	assert.ErrorContains(t, err, "migration driver")
	assert.Equal(t, 0, conn.Stats().InUse)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	assert.NoError(t, db.Check(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
