package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // driver: sqlite

	"github.com/gokatarajesh/certprep/internal/db/migrations"
	"github.com/gokatarajesh/certprep/internal/docstore"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverPostgres:
		drvName = "pgx"
	case DriverSQLite:
		drvName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	conn, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single writer keeps in-memory databases shared and avoids SQLITE_BUSY
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return conn, nil
}

// Migrate applies the embedded goose migrations for the driver.
func Migrate(ctx context.Context, conn *sql.DB, driver Driver) error {
	dialect, dir, err := gooseTarget(driver)
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrations.FS)
	goose.SetTableName("goose_db_version")
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, conn, dir); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, conn *sql.DB, driver Driver) error {
	dialect, dir, err := gooseTarget(driver)
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrations.FS)
	goose.SetTableName("goose_db_version")
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.DownContext(ctx, conn, dir); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// MigrationStatus prints the applied state of every migration.
func MigrationStatus(ctx context.Context, conn *sql.DB, driver Driver) error {
	dialect, dir, err := gooseTarget(driver)
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrations.FS)
	goose.SetTableName("goose_db_version")
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return goose.StatusContext(ctx, conn, dir)
}

// Dialect maps a driver to the document store dialect.
func Dialect(driver Driver) docstore.Dialect {
	if driver == DriverSQLite {
		return docstore.DialectSQLite
	}
	return docstore.DialectPostgres
}

func gooseTarget(driver Driver) (dialect, dir string, err error) {
	switch driver {
	case DriverPostgres:
		return "postgres", "postgres", nil
	case DriverSQLite:
		return "sqlite3", "sqlite", nil
	}
	return "", "", fmt.Errorf("unsupported driver: %s", driver)
}
