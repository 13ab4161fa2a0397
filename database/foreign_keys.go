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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"gopkg.in/yaml.v3"
)

var validReferentialActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

// ForeignKeyConstraint describes a foreign key relationship between tables.
type ForeignKeyConstraint struct {
	Table           string `yaml:"table"`
	Column          string `yaml:"column"`
	ReferenceTable  string `yaml:"reference_table"`
	ReferenceColumn string `yaml:"reference_column"`
	OnDelete        string `yaml:"on_delete,omitempty"` // CASCADE, RESTRICT, SET NULL, NO ACTION
	OnUpdate        string `yaml:"on_update,omitempty"`
	ConstraintName  string `yaml:"constraint_name,omitempty"`
}

// ForeignKeyConfig is the YAML document that lists foreign key constraints.
type ForeignKeyConfig struct {
	ForeignKeys []ForeignKeyConstraint `yaml:"foreign_keys"`
}

// GenerateConstraintName returns the explicit name or a derived name.
func (fk *ForeignKeyConstraint) GenerateConstraintName() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

// GenerateSQL returns the ALTER TABLE statement that adds the constraint.
func (fk *ForeignKeyConstraint) GenerateSQL() string {
	sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
		fk.Table, fk.GenerateConstraintName(), fk.Column, fk.ReferenceTable, fk.ReferenceColumn)
	if fk.OnDelete != "" {
		sql += " ON DELETE " + strings.ToUpper(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		sql += " ON UPDATE " + strings.ToUpper(fk.OnUpdate)
	}
	return sql
}

// Validate checks the constraint for missing names and unknown actions.
func (fk *ForeignKeyConstraint) Validate() []error {
	var errs []error
	if fk.Table == "" {
		errs = append(errs, fmt.Errorf("table name cannot be empty"))
	}
	if fk.Column == "" {
		errs = append(errs, fmt.Errorf("column name cannot be empty: %s", fk.Table))
	}
	if fk.ReferenceTable == "" {
		errs = append(errs, fmt.Errorf("reference table name cannot be empty: %s.%s", fk.Table, fk.Column))
	}
	if fk.ReferenceColumn == "" {
		errs = append(errs, fmt.Errorf("reference column name cannot be empty: %s.%s -> %s", fk.Table, fk.Column, fk.ReferenceTable))
	}
	for _, action := range []struct{ kind, value string }{{"delete", fk.OnDelete}, {"update", fk.OnUpdate}} {
		if action.value != "" && !isReferentialAction(action.value) {
			errs = append(errs, fmt.Errorf("invalid on %s action: %s, constraint: %s", action.kind, action.value, fk.GenerateConstraintName()))
		}
	}
	return errs
}

func isReferentialAction(s string) bool {
	for _, a := range validReferentialActions {
		if strings.EqualFold(s, a) {
			return true
		}
	}
	return false
}

var (
	registeredForeignKeys   []ForeignKeyConstraint
	registeredForeignKeysMu sync.RWMutex
)

// RegisterForeignKey records a code-defined constraint. Repositories with
// cascading dependents register their relations here. Registering the same
// constraint name twice keeps the first registration.
func RegisterForeignKey(fk ForeignKeyConstraint) {
	registeredForeignKeysMu.Lock()
	defer registeredForeignKeysMu.Unlock()
	for _, existing := range registeredForeignKeys {
		if existing.GenerateConstraintName() == fk.GenerateConstraintName() {
			return
		}
	}
	registeredForeignKeys = append(registeredForeignKeys, fk)
}

// RegisteredForeignKeys returns a copy of the code-defined constraints.
func RegisteredForeignKeys() []ForeignKeyConstraint {
	registeredForeignKeysMu.RLock()
	defer registeredForeignKeysMu.RUnlock()
	out := make([]ForeignKeyConstraint, len(registeredForeignKeys))
	copy(out, registeredForeignKeys)
	return out
}

// ForeignKeyManager adds and validates foreign key constraints.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	logger      Logger
}

// NewForeignKeyManager creates a manager with the code-defined constraints.
func NewForeignKeyManager(logger Logger) *ForeignKeyManager {
	return &ForeignKeyManager{
		constraints: RegisteredForeignKeys(),
		logger:      logger,
	}
}

// LoadForeignKeyFile reads a YAML file and appends its constraints to the
// code-defined ones. File entries win over code entries with the same name.
func (fkm *ForeignKeyManager) LoadForeignKeyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read foreign key file: %w", err)
	}
	var config ForeignKeyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse foreign key file: %w", err)
	}

	byName := make(map[string]int, len(fkm.constraints))
	for i, c := range fkm.constraints {
		byName[c.GenerateConstraintName()] = i
	}
	for _, c := range config.ForeignKeys {
		if i, ok := byName[c.GenerateConstraintName()]; ok {
			fkm.constraints[i] = c
			continue
		}
		fkm.constraints = append(fkm.constraints, c)
	}
	return nil
}

// ExportToFile writes the current constraints as a YAML document.
func (fkm *ForeignKeyManager) ExportToFile(path string) error {
	data, err := yaml.Marshal(&ForeignKeyConfig{ForeignKeys: fkm.constraints})
	if err != nil {
		return fmt.Errorf("failed to serialize foreign keys: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// AddAllForeignKeys adds every constraint to the database. SQLite cannot
// add constraints to existing tables, so it is skipped there. Failures of
// single constraints (usually "already exists") are logged and skipped.
func (fkm *ForeignKeyManager) AddAllForeignKeys(ctx context.Context, db bun.IDB) error {
	if db.Dialect().Name() == dialect.SQLite {
		if len(fkm.constraints) > 0 {
			fkm.logger.Debug("SQLite does not support adding foreign keys, skipped", "count", len(fkm.constraints))
		}
		return nil
	}
	for _, constraint := range fkm.constraints {
		if _, err := db.ExecContext(ctx, constraint.GenerateSQL()); err != nil {
			fkm.logger.Debug("Failed to add foreign key constraint", "constraint", constraint.GenerateConstraintName(), "error", err.Error())
			continue
		}
		fkm.logger.Debug("Added foreign key constraint", "constraint", constraint.GenerateConstraintName())
	}
	return nil
}

// RemoveForeignKey drops a named foreign key from a table.
func (fkm *ForeignKeyManager) RemoveForeignKey(ctx context.Context, db bun.IDB, tableName, constraintName string) error {
	stmt := "ALTER TABLE ? DROP CONSTRAINT ?"
	if db.Dialect().Name() == dialect.MySQL {
		stmt = "ALTER TABLE ? DROP FOREIGN KEY ?"
	}
	_, err := db.ExecContext(ctx, stmt, bun.Ident(tableName), bun.Ident(constraintName))
	return err
}

// GetConstraintsByTable returns the constraints defined on a table.
func (fkm *ForeignKeyManager) GetConstraintsByTable(tableName string) []ForeignKeyConstraint {
	var result []ForeignKeyConstraint
	for _, constraint := range fkm.constraints {
		if strings.EqualFold(constraint.Table, tableName) {
			result = append(result, constraint)
		}
	}
	return result
}

// ListAllConstraints returns all configured constraints.
func (fkm *ForeignKeyManager) ListAllConstraints() []ForeignKeyConstraint {
	return fkm.constraints
}

// ValidateConstraints checks every configured constraint.
func (fkm *ForeignKeyManager) ValidateConstraints() []error {
	var errs []error
	for i := range fkm.constraints {
		errs = append(errs, fkm.constraints[i].Validate()...)
	}
	return errs
}
