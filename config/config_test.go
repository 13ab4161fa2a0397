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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/crudkit/database"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load("")
	require.NoError(t, err)

	conn := cfg.Database.ConnectionConfig
	assert.Equal(t, database.TypeSQLite, conn.Type)
	assert.Equal(t, database.MemoryDBName, conn.DBName)
	assert.Equal(t, 100, conn.MaxOpenConns)
	assert.Equal(t, 2*time.Second, conn.SlowQueryTime)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Database.DataMigrateConfig.EnableMigrateOnStartup)
}

func TestLoadFileWithEnvOverrides(t *testing.T) {
	path := writeFile(t, "app.yaml", `
database:
  connection:
    type: postgres
    host: db.internal
    port: 5432
    username: app
    dbname: shop
    slow_query_time: 500ms
    max_open_conns: 20
  migrate:
    enable_migrate_on_startup: true
    foreign_key_file: fk.yaml
logging:
  level: debug
  format: json
`)
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_HOST", "10.0.0.5")
	t.Setenv("DB_PORT", "6432")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	conn := cfg.Database.ConnectionConfig
	assert.Equal(t, "postgres", conn.Type)
	assert.Equal(t, "10.0.0.5", conn.Host)
	assert.Equal(t, 6432, conn.Port)
	assert.Equal(t, "app", conn.Username)
	assert.Equal(t, "secret", conn.Password)
	assert.Equal(t, "shop", conn.DBName)
	assert.Equal(t, 500*time.Millisecond, conn.SlowQueryTime)
	assert.Equal(t, 20, conn.MaxOpenConns)
	assert.Equal(t, 10, conn.MaxIdleConns)
	assert.True(t, cfg.Database.DataMigrateConfig.EnableMigrateOnStartup)
	assert.Equal(t, "fk.yaml", cfg.Database.DataMigrateConfig.ForeignKeyFile)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, "mysql.yaml", "database:\n  connection:\n    type: mysql\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, "host is required")

	path = writeFile(t, "oracle.yaml", "database:\n  connection:\n    type: oracle\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestLoadEnvFile(t *testing.T) {
	const key = "CRUDKIT_DOTENV_SAMPLE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := writeFile(t, ".env", key+"=from-dotenv\n")
	require.NoError(t, LoadEnvFile(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "from-dotenv", os.Getenv(key))
}
