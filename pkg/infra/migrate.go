package infra

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Migrator applies the report schema.
type Migrator interface {
	// Up migrates from the current version to the latest one.
	Up(source, connStr string) error
	// Down rolls back every migration.
	Down(source, connStr string) error
}

type migrateTool struct {
	mu sync.Mutex
}

var (
	once      sync.Once // nolint
	singleton Migrator  // nolint
)

// GetMigrator returns the process-wide migrator. Migrations run one at a time.
func GetMigrator() Migrator { // nolint
	once.Do(func() {
		singleton = &migrateTool{}
	})
	return singleton
}

func (mt *migrateTool) Up(source, connStr string) error {
	return mt.run(source, connStr, func(mg *migrate.Migrate) error { return mg.Up() })
}

func (mt *migrateTool) Down(source, connStr string) error {
	return mt.run(source, connStr, func(mg *migrate.Migrate) error { return mg.Down() })
}

func (mt *migrateTool) run(source, connStr string, step func(*migrate.Migrate) error) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	zap.S().Infof("migrating from %s", source)

	mg, err := migrate.New(source, connStr)
	if err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}

	// a dirty version means the last run failed halfway; retry it
	if dirty {
		if err := mg.Force(int(version) - 1); err != nil {
			return fmt.Errorf("force version %d: %w", version-1, err)
		}
	}

	if err := step(mg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	zap.S().Info("migration done")
	return nil
}
