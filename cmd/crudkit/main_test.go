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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/crudkit/database"
	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_NAME", database.MemoryDBName)

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateCommand(t *testing.T) {
	database.RegisterMigration(database.MigrationItem{
		Version: "0001_cli_scratch",
		Name:    "cli_scratch",
		Up: func(ctx context.Context, db bun.IDB) error {
			_, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS cli_scratch (id INTEGER PRIMARY KEY)")
			return err
		},
	})

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "0001_cli_scratch\tcli_scratch")
}

func TestHealthCommand(t *testing.T) {
	out, err := run(t, "health", "--timeout", "2s")
	require.NoError(t, err)

	var report struct {
		Health database.HealthStatus `json:"health"`
		Stats  database.DBStats      `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Health.Healthy)
	assert.Equal(t, 1, report.Stats.MaxOpenConns)
}

func TestForeignKeyExport(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "fk.yaml")
	require.NoError(t, os.WriteFile(input, []byte(`
foreign_keys:
  - table: orders
    column: customer_id
    reference_table: customers
    reference_column: id
    on_delete: cascade
`), 0o644))
	t.Setenv("DB_FOREIGN_KEY_FILE", input)

	output := filepath.Join(dir, "out", "exported.yaml")
	out, err := run(t, "fk", "export", "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, "exported")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var exported database.ForeignKeyConfig
	require.NoError(t, yaml.Unmarshal(data, &exported))
	assert.Contains(t, exported.ForeignKeys, database.ForeignKeyConstraint{
		Table:           "orders",
		Column:          "customer_id",
		ReferenceTable:  "customers",
		ReferenceColumn: "id",
		OnDelete:        "cascade",
	})

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("foreign_keys:\n  - table: orders\n    on_delete: explode\n"), 0o644))
	t.Setenv("DB_FOREIGN_KEY_FILE", invalid)
	_, err = run(t, "fk", "export", "-o", output)
	assert.ErrorContains(t, err, "invalid foreign key constraints")
}
