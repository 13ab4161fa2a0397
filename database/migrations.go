/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/uptrace/bun"
)

const foreignKeyMigrationVersion = "0000_foreign_keys"

// Migration is an applied migration record stored in the database.
type Migration struct {
	bun.BaseModel `bun:"table:crudkit_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at,notnull"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version with up/down functions.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
	Down        MigrationFunc
}

var (
	registeredMigrations   []MigrationItem
	registeredMigrationsMu sync.RWMutex
)

// RegisterMigration adds a versioned migration run by every MigrationManager
// after the tables of registered models exist.
func RegisterMigration(item MigrationItem) {
	registeredMigrationsMu.Lock()
	defer registeredMigrationsMu.Unlock()
	registeredMigrations = append(registeredMigrations, item)
}

// MigrationManager creates tables for registered models, applies foreign
// keys and runs versioned migrations.
type MigrationManager struct {
	db               *bun.DB
	logger           Logger
	enableForeignKey bool
	foreignKeyFile   string
}

// NewMigrationManager constructs a MigrationManager on db.
func NewMigrationManager(db *bun.DB, logger Logger) *MigrationManager {
	if logger == nil {
		logger = GetLogger()
	}
	return &MigrationManager{db: db, logger: logger}
}

// SetForeignKeys enables the foreign key migration, optionally reading
// extra constraints from a YAML file.
func (mm *MigrationManager) SetForeignKeys(enabled bool, file string) {
	mm.enableForeignKey = enabled
	mm.foreignKeyFile = file
}

// RunMigrations creates the tracking table and the tables of all registered
// models, then runs pending migrations in ascending version order. Query
// logging is silenced unless BUNDEBUG_MIGRATION is set.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return ErrNotInitialized
	}
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		EnableSilentMode(true)
		defer EnableSilentMode(false)
	}

	if err := mm.createMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	if err := mm.CreateTables(ctx); err != nil {
		return err
	}

	for _, migration := range mm.pendingCandidates() {
		if err := mm.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}

	mm.logger.Info("Database migrations completed")
	return nil
}

// CreateTables creates the table of every registered model if missing.
func (mm *MigrationManager) CreateTables(ctx context.Context) error {
	for _, model := range RegisteredModelInstances() {
		_, err := mm.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, err)
		}
	}
	return nil
}

func (mm *MigrationManager) createMigrationTable(ctx context.Context) error {
	_, err := mm.db.NewCreateTable().
		Model((*Migration)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (mm *MigrationManager) pendingCandidates() []MigrationItem {
	registeredMigrationsMu.RLock()
	migrations := make([]MigrationItem, 0, len(registeredMigrations)+1)
	migrations = append(migrations, registeredMigrations...)
	registeredMigrationsMu.RUnlock()

	if mm.enableForeignKey {
		migrations = append(migrations, MigrationItem{
			Version:     foreignKeyMigrationVersion,
			Name:        "add_foreign_keys",
			Description: "Add table foreign key constraints",
			Up:          mm.addForeignKeys,
		})
	}
	sort.SliceStable(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if migration.Up == nil {
		return fmt.Errorf("migration %s has no up step", migration.Version)
	}

	err = mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := migration.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().
			Model(&Migration{
				Version:     migration.Version,
				Name:        migration.Name,
				AppliedAt:   time.Now(),
				Description: migration.Description,
			}).
			Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration executed", "version", migration.Version, "name", migration.Name)
	return nil
}

func (mm *MigrationManager) addForeignKeys(ctx context.Context, db bun.IDB) error {
	fkManager := NewForeignKeyManager(mm.logger)
	if mm.foreignKeyFile != "" {
		if err := fkManager.LoadForeignKeyFile(mm.foreignKeyFile); err != nil {
			return err
		}
	}
	if errs := fkManager.ValidateConstraints(); len(errs) > 0 {
		for _, err := range errs {
			mm.logger.Debug("Foreign key constraint validation failed", "error", err.Error())
		}
		return fmt.Errorf("foreign key constraint validation failed, %d errors in total", len(errs))
	}
	return fkManager.AddAllForeignKeys(ctx, db)
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}

// RollbackMigration runs the Down step of an applied migration and removes
// its record.
func (mm *MigrationManager) RollbackMigration(ctx context.Context, version string) error {
	var item *MigrationItem
	for _, m := range mm.pendingCandidates() {
		if m.Version == version {
			item = &m
			break
		}
	}
	if item == nil {
		return fmt.Errorf("unknown migration version: %s", version)
	}
	if item.Down == nil {
		return fmt.Errorf("migration %s has no down step", version)
	}

	var record Migration
	err := mm.db.NewSelect().Model(&record).Where("version = ?", version).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("migration %s is not applied", version)
	}
	if err != nil {
		return err
	}

	return mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := item.Down(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model(&record).WherePK().Exec(ctx)
		return err
	})
}
