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

package crudkit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/crudkit"
	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/repository"
	"github.com/tomoncle/crudkit/search"
	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
)

type SystemConfig struct {
	bun.BaseModel `bun:"table:system_config,alias:sc"`

	ID          int64     `bun:"id,type:integer,pk,autoincrement" json:"id"`
	ConfigKey   string    `bun:"config_key,notnull,unique" json:"config_key"`
	ConfigValue string    `bun:"config_value" json:"config_value"`
	Description string    `bun:"description" json:"description"`
	ConfigType  string    `bun:"config_type,notnull,default:'string'" json:"config_type"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// touchHooks stamps UpdatedAt before every save.
type touchHooks struct {
	repository.NopHooks[SystemConfig]
}

func (touchHooks) BeforeSave(_ context.Context, _ *bun.Tx, c *SystemConfig, state repository.EntityState) error {
	c.UpdatedAt = time.Now()
	if state == repository.Added && c.ConfigType == "" {
		c.ConfigType = "string"
	}
	return nil
}

func initTestDB(t *testing.T) {
	t.Helper()
	database.RegisterModel((*SystemConfig)(nil), 10)

	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = database.TypeSQLite
	cfg.ConnectionConfig.DBName = database.MemoryDBName
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.DataMigrateConfig.EnableMigrateOnStartup = true

	_, err := database.InitDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB() })
}

func TestServiceBeforeInit(t *testing.T) {
	require.NoError(t, database.CloseDB())
	ctx := context.Background()
	svc := crudkit.NewService[SystemConfig]()

	_, err := svc.Get(ctx, int64(1))
	assert.ErrorIs(t, err, repository.ErrNotInitialized)
	_, err = svc.Page(ctx, nil)
	assert.ErrorIs(t, err, repository.ErrNotInitialized)
	_, err = svc.Find(ctx, nil)
	assert.ErrorIs(t, err, repository.ErrNotInitialized)
	_, err = svc.State(ctx, &SystemConfig{ID: 1})
	assert.ErrorIs(t, err, repository.ErrNotInitialized)
	assert.ErrorIs(t, svc.Save(ctx, &SystemConfig{ConfigKey: "early"}), repository.ErrNotInitialized)
	assert.ErrorIs(t, svc.SaveAll(ctx, &SystemConfig{ConfigKey: "early"}), repository.ErrNotInitialized)
	assert.ErrorIs(t, svc.Delete(ctx, int64(1)), repository.ErrNotInitialized)

	initTestDB(t)
	require.NoError(t, svc.Save(ctx, &SystemConfig{ConfigKey: "late", ConfigValue: "ok"}))
	all, err := svc.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "late", all[0].ConfigKey)
}

func TestServiceCrud(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()
	svc := crudkit.NewService[SystemConfig](repository.WithHooks[SystemConfig](touchHooks{}))

	require.NoError(t, svc.Save(ctx,
		&SystemConfig{ConfigKey: "site.name", ConfigValue: "crudkit"},
		&SystemConfig{ConfigKey: "site.theme", ConfigValue: "dark"},
		&SystemConfig{ConfigKey: "mail.host", ConfigValue: "smtp.local"},
	))

	all, err := svc.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "string", all[0].ConfigType)
	assert.False(t, all[0].UpdatedAt.IsZero())

	site, err := svc.Find(ctx, search.And(search.Prefix("config_key", "site.")), "config_key ASC")
	require.NoError(t, err)
	require.Len(t, site, 2)
	assert.Equal(t, "site.name", site[0].ConfigKey)

	n, err := svc.Count(ctx, search.Or(search.Eq("ConfigValue", "dark"), search.Eq("ConfigValue", "smtp.local")))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	site[1].ConfigValue = "light"
	require.NoError(t, svc.Update(ctx, site[1]))
	got, err := svc.Get(ctx, site[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "light", got.ConfigValue)

	got.ConfigValue = "auto"
	require.NoError(t, svc.SaveAll(ctx, got, &SystemConfig{ConfigKey: "mail.port", ConfigValue: "25"}))
	got, err = svc.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, "auto", got.ConfigValue)

	page, err := svc.Page(ctx, types.NewPageRequestWithOrders(1, 3, "config_key ASC"))
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "mail.host", page.Items[0].ConfigKey)

	found, err := svc.Search(ctx, search.And(search.Like("config_key", "mail")), types.NewDefaultPageRequest(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, found.Total)

	list, err := svc.List(ctx, types.NewQueryFilter("config_value = ?", "25"))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	state, err := svc.State(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, repository.Modified, state)
	state, err = svc.State(ctx, &SystemConfig{ConfigKey: "new.key"})
	require.NoError(t, err)
	assert.Equal(t, repository.Added, state)

	require.NoError(t, svc.Delete(ctx, got.ID))
	_, err = svc.Get(ctx, got.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, svc.Remove(ctx, list[0]))
	assert.ErrorIs(t, svc.Remove(ctx, list[0]), repository.ErrNotFound)
}

func TestServiceUpsertAndTx(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()
	svc := crudkit.NewService[SystemConfig]()

	require.NoError(t, svc.Save(ctx, &SystemConfig{ConfigKey: "feature.x", ConfigValue: "off", ConfigType: "bool"}))
	require.NoError(t, svc.SaveOrUpdate(ctx, []string{"config_value"}, []string{"config_key"},
		&SystemConfig{ConfigKey: "feature.x", ConfigValue: "on", ConfigType: "bool"},
		&SystemConfig{ConfigKey: "feature.y", ConfigValue: "on", ConfigType: "bool"},
	))
	rows, err := svc.Query(ctx, "config_value = ?", "on")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	x, err := svc.Find(ctx, search.And(search.Eq("config_key", "feature.x")))
	require.NoError(t, err)
	require.Len(t, x, 1)
	assert.Equal(t, "on", x[0].ConfigValue)

	err = svc.Repository().RunInTx(ctx, func(ctx context.Context, tx *bun.Tx) error {
		if err := svc.SaveWithTx(ctx, tx, &SystemConfig{ConfigKey: "feature.z", ConfigValue: "on", ConfigType: "bool"}); err != nil {
			return err
		}
		return svc.DeleteWithTx(ctx, tx, x[0].ID)
	})
	require.NoError(t, err)

	keys := make([]string, 0)
	err = svc.SelectBuilder().Column("config_key").Order("config_key ASC").Scan(ctx, &keys)
	require.NoError(t, err)
	assert.Equal(t, []string{"feature.y", "feature.z"}, keys)

	assert.ErrorIs(t, svc.Save(ctx, &SystemConfig{ConfigKey: "feature.y", ConfigType: "bool"}), repository.ErrDuplicate)
}
