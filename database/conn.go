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
	"errors"
	"fmt"
	"sync"

	"github.com/uptrace/bun"
)

// ErrNotInitialized is returned when no database connection is available.
var ErrNotInitialized = errors.New("database not initialized")

var (
	globalMu      sync.RWMutex
	globalManager AbstractDatabaseManager
	globalDB      *bun.DB
)

// GetDB returns the global Bun database, or nil before InitDB/SetDB.
func GetDB() *bun.DB {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalManager != nil {
		return globalManager.GetDB()
	}
	return globalDB
}

// SetDB installs an externally managed database as the global one.
func SetDB(db *bun.DB) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalManager = nil
	globalDB = db
}

// GetDatabaseManager returns the global database manager.
func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// InitDB connects the global database and runs migrations when
// DataMigrateConfig.EnableMigrateOnStartup is set.
func InitDB(cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	return InitDatabaseWithOptions(cfg, cfg.DataMigrateConfig.EnableMigrateOnStartup)
}

// InitDatabaseWithOptions connects the global database and optionally runs
// migrations. A previously initialized global database is closed first.
func InitDatabaseWithOptions(cfg *Config, runMigrations bool) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	manager, err := OpenManager(context.Background(), cfg, runMigrations)
	if err != nil {
		return nil, err
	}

	db := manager.GetDB()
	globalMu.Lock()
	previous := globalManager
	globalManager = manager
	globalDB = db
	globalMu.Unlock()

	if previous != nil {
		_ = previous.Disconnect()
	}
	return db, nil
}

// OpenManager creates a manager for cfg, connects it and optionally runs
// migrations. The manager is not installed globally.
func OpenManager(ctx context.Context, cfg *Config, runMigrations bool) (AbstractDatabaseManager, error) {
	switch normalizeType(cfg.ConnectionConfig.Type) {
	case TypeMySQL, TypePostgres, TypeSQLite:
	default:
		return nil, fmt.Errorf("unsupported database type: %q, supported types: %v",
			cfg.ConnectionConfig.Type, []string{TypeMySQL, TypePostgres, TypeSQLite})
	}

	manager := NewDatabaseManagerWithConfig(cfg)
	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	manager.GetDB().RegisterModel(RegisteredModelInstances()...)

	if runMigrations {
		if err := manager.RunMigrations(ctx); err != nil {
			_ = manager.Disconnect()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}
	GetLogger().Info("Database initialization completed")
	return manager, nil
}

// CloseDB closes the global database connection.
func CloseDB() error {
	globalMu.Lock()
	manager := globalManager
	db := globalDB
	globalManager = nil
	globalDB = nil
	globalMu.Unlock()

	if manager != nil {
		return manager.Disconnect()
	}
	if db != nil {
		return db.Close()
	}
	return nil
}

// GetHealthStatus returns the current health of the global database.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if manager := GetDatabaseManager(); manager != nil {
		return manager.HealthCheck(ctx)
	}
	return &HealthStatus{LastError: ErrNotInitialized.Error()}
}

// GetDatabaseStats returns pool statistics of the global database.
func GetDatabaseStats() *DBStats {
	if manager := GetDatabaseManager(); manager != nil {
		return manager.GetStats()
	}
	return &DBStats{}
}

// RunMigrations runs migrations on the global database.
func RunMigrations(ctx context.Context) error {
	if manager := GetDatabaseManager(); manager != nil {
		return manager.RunMigrations(ctx)
	}
	db := GetDB()
	if db == nil {
		return ErrNotInitialized
	}
	return NewMigrationManager(db, GetLogger()).RunMigrations(ctx)
}
