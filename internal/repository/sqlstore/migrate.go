package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending up migrations. A database that is already
// current is not an error.
func (db *DB) Migrate(ctx context.Context) error {
	return db.withMigrator(ctx, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("sqlstore: migrate up: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back every applied migration.
func (db *DB) MigrateDown(ctx context.Context) error {
	return db.withMigrator(ctx, func(m *migrate.Migrate) error {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("sqlstore: migrate down: %w", err)
		}
		return nil
	})
}

// SchemaVersion returns the applied migration version; 0 means none.
func (db *DB) SchemaVersion(ctx context.Context) (version uint, dirty bool, err error) {
	err = db.withMigrator(ctx, func(m *migrate.Migrate) error {
		v, d, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		if verr != nil {
			return fmt.Errorf("sqlstore: reading schema version: %w", verr)
		}
		version, dirty = v, d
		return nil
	})
	return version, dirty, err
}

// withMigrator runs fn against a migrator bound to this pool. The pool
// itself outlives the migrator: migrate.Close is never called, and the
// driver is only closed when it owns nothing but a pinned connection.
func (db *DB) withMigrator(ctx context.Context, fn func(m *migrate.Migrate) error) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlstore: loading migrations: %w", err)
	}
	defer src.Close()

	drv, release, err := db.migrationDriver(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: migration driver: %w", err)
	}
	defer release()

	m, err := migrate.NewWithInstance("iofs", src, string(db.dialect), drv)
	if err != nil {
		return fmt.Errorf("sqlstore: init migrator: %w", err)
	}

	return fn(m)
}

// migrationDriver returns a driver plus the func that releases whatever
// it holds. The sqlite driver's Close would close our *sql.DB, so it is
// never called. The postgres driver gets its own pinned connection and
// closing it hands that connection back to the pool.
func (db *DB) migrationDriver(ctx context.Context) (database.Driver, func(), error) {
	switch db.dialect {
	case DialectPostgres:
		conn, err := db.conn.Conn(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("pinning connection: %w", err)
		}
		drv, err := migratepg.WithConnection(ctx, conn, &migratepg.Config{})
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return drv, func() { db.closeQuietly(drv, conn) }, nil
	case DialectSQLite:
		drv, err := migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
		if err != nil {
			return nil, nil, err
		}
		return drv, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported dialect %q", db.dialect)
	}
}

func (db *DB) closeQuietly(drv database.Driver, conn *sql.Conn) {
	if err := drv.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		db.logger.Warn("closing migration driver", slog.String("error", err.Error()))
	}
	// No-op when the driver already released it.
	conn.Close()
}
