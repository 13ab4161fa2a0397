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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/utils"
)

// Config is the file layout read by Load:
//
//	database:
//	  connection: {type: postgres, host: ..., port: ...}
//	  migrate: {enable_migrate_on_startup: true}
//	logging: {level: info, format: text}
type Config struct {
	Database database.Config `mapstructure:"database"`
	Logging  LoggingConfig   `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings maps config keys onto the environment variables overriding
// them.
var envBindings = map[string]string{
	"database.connection.type":                   "DB_TYPE",
	"database.connection.host":                   "DB_HOST",
	"database.connection.port":                   "DB_PORT",
	"database.connection.username":               "DB_USER",
	"database.connection.password":               "DB_PASSWORD",
	"database.connection.dbname":                 "DB_NAME",
	"database.connection.sslmode":                "DB_SSLMODE",
	"database.connection.max_open_conns":         "DB_MAX_OPEN_CONNS",
	"database.connection.max_idle_conns":         "DB_MAX_IDLE_CONNS",
	"database.connection.enable_query_log":       "DB_QUERY_LOG",
	"database.connection.slow_query_time":        "DB_SLOW_QUERY_TIME",
	"database.connection.enable_metrics":         "DB_METRICS",
	"database.migrate.enable_migrate_on_startup": "DB_MIGRATE",
	"database.migrate.enable_foreign_key":        "DB_FOREIGN_KEY",
	"database.migrate.foreign_key_file":          "DB_FOREIGN_KEY_FILE",
	"logging.level":                              "LOG_LEVEL",
	"logging.format":                             "LOG_FORMAT",
}

// Load reads configuration from path (YAML), then applies environment
// overrides. Variables from a .env file in the working directory are loaded
// first when the file exists. CONFIG_FILE replaces path when set; an empty
// path uses defaults and environment only.
func Load(path string) (*Config, error) {
	if err := LoadEnvFile(); err != nil {
		return nil, err
	}
	if envFile := os.Getenv("CONFIG_FILE"); envFile != "" {
		path = envFile
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadEnvFile loads the given .env files, or ./.env when none are given.
// Missing files are ignored; variables already set are kept.
func LoadEnvFile(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", filepath.Base(file), err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	c := database.DefaultConnectionConfig()
	v.SetDefault("database.connection.type", database.TypeSQLite)
	v.SetDefault("database.connection.dbname", database.MemoryDBName)
	v.SetDefault("database.connection.max_idle_conns", c.MaxIdleConns)
	v.SetDefault("database.connection.max_open_conns", c.MaxOpenConns)
	v.SetDefault("database.connection.conn_max_lifetime", c.ConnMaxLifetime)
	v.SetDefault("database.connection.conn_max_idle_time", c.ConnMaxIdleTime)
	v.SetDefault("database.connection.connect_timeout", c.ConnectTimeout)
	v.SetDefault("database.connection.read_timeout", c.ReadTimeout)
	v.SetDefault("database.connection.write_timeout", c.WriteTimeout)
	v.SetDefault("database.connection.enable_reconnect", c.EnableReconnect)
	v.SetDefault("database.connection.reconnect_interval", c.ReconnectInterval)
	v.SetDefault("database.connection.max_reconnect_tries", c.MaxReconnectTries)
	v.SetDefault("database.connection.health_check_interval", c.HealthCheckInterval)
	v.SetDefault("database.connection.enable_query_log", c.EnableQueryLog)
	v.SetDefault("database.connection.slow_query_time", c.SlowQueryTime)
	v.SetDefault("database.connection.charset", c.Charset)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks the settings needed to open a connection.
func (c *Config) Validate() error {
	conn := c.Database.ConnectionConfig
	switch strings.ToLower(conn.Type) {
	case database.TypeSQLite, "sqlite3":
		return nil
	case database.TypeMySQL, database.TypePostgres, "postgresql", "pg":
	default:
		return fmt.Errorf("unsupported database type: %q", conn.Type)
	}
	if conn.Host == "" {
		return fmt.Errorf("database host is required for %s", conn.Type)
	}
	if conn.Port <= 0 {
		return fmt.Errorf("database port is required for %s", conn.Type)
	}
	if conn.DBName == "" {
		return fmt.Errorf("database name is required for %s", conn.Type)
	}
	return nil
}

// ApplyLogging configures the level and format of every named logger.
func (c *Config) ApplyLogging() {
	if c.Logging.Level != "" {
		utils.ConfigureLogLevel(c.Logging.Level)
	}
	if c.Logging.Format != "" {
		utils.ConfigureLogFormat(c.Logging.Format)
	}
}
