package repository

import (
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// RunMigrations applies every pending versioned migration under
// dir (file://-sourced) to the Postgres database at dsn, replacing the
// teacher's lib-common/database.RunMigrations wrapper with a direct
// golang-migrate/v4 call.
func RunMigrations(dsn, dir string, zapLogger *zap.Logger) error {
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	zapLogger.Info("database migrations applied")
	return nil
}
