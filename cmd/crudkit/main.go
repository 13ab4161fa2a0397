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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tomoncle/crudkit/config"
	"github.com/tomoncle/crudkit/database"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:          "crudkit",
		Short:        "Database maintenance for crudkit applications",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (CONFIG_FILE)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg.ApplyLogging()
		return cfg, nil
	}

	root.AddCommand(newMigrateCommand(load), newHealthCommand(load), newForeignKeyCommand(load))
	return root
}

type loader func() (*config.Config, error)

func newMigrateCommand(load loader) *cobra.Command {
	var withForeignKeys bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create registered tables and run pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if withForeignKeys {
				cfg.Database.DataMigrateConfig.EnableForeignKey = true
			}
			db, err := database.InitDatabaseWithOptions(&cfg.Database, true)
			if err != nil {
				return err
			}
			defer func() { _ = database.CloseDB() }()

			applied, err := database.NewMigrationManager(db, nil).GetAppliedMigrations(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", m.Version, m.Name, m.AppliedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withForeignKeys, "foreign-keys", false, "also apply foreign key constraints")
	return cmd
}

func newHealthCommand(load loader) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Ping the database and print pool statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if _, err := database.InitDatabaseWithOptions(&cfg.Database, false); err != nil {
				return err
			}
			defer func() { _ = database.CloseDB() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			report := struct {
				Health *database.HealthStatus `json:"health"`
				Stats  *database.DBStats      `json:"stats"`
			}{database.GetHealthStatus(ctx), database.GetDatabaseStats()}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Health.Healthy {
				return fmt.Errorf("database unhealthy: %s", report.Health.LastError)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "health check timeout")
	return cmd
}

func newForeignKeyCommand(load loader) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "fk",
		Short: "Validate and export foreign key constraints",
	}
	export := &cobra.Command{
		Use:   "export",
		Short: "Write configured foreign keys as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			fkm := database.NewForeignKeyManager(database.GetLogger())
			if file := cfg.Database.DataMigrateConfig.ForeignKeyFile; file != "" {
				if err := fkm.LoadForeignKeyFile(file); err != nil {
					return err
				}
			}
			if errs := fkm.ValidateConstraints(); len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintln(cmd.ErrOrStderr(), e)
				}
				return fmt.Errorf("%d invalid foreign key constraints", len(errs))
			}
			if err := fkm.ExportToFile(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d constraints to %s\n", len(fkm.ListAllConstraints()), output)
			return nil
		},
	}
	export.Flags().StringVarP(&output, "output", "o", "foreign_keys.yaml", "output file")
	cmd.AddCommand(export)
	return cmd
}
