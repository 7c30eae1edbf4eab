package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type migrationLogger struct {
	log *zap.SugaredLogger
}

func (l migrationLogger) Printf(format string, v ...any) { l.log.Debugf(format, v...) }
func (l migrationLogger) Verbose() bool                  { return false }

// Migrate applies every pending embedded migration. An up-to-date schema is
// not an error.
func Migrate(conn *sql.DB, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	drv, err := sqlite3.WithInstance(conn, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrationLogger{log: log.Sugar()}

	before, _, _ := m.Version()
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("catalog schema up to date", zap.Uint("version", before))
			return nil
		}
		version, dirty, _ := m.Version()
		return fmt.Errorf("migration failed at version %d (dirty=%t): %w", version, dirty, err)
	}
	after, _, _ := m.Version()
	log.Info("catalog schema migrated", zap.Uint("from", before), zap.Uint("to", after))
	return nil
}
