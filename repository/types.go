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

package repository

import (
	"context"
	"errors"

	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/search"
	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

var (
	ErrNilEntity       = errors.New("entity cannot be nil")
	ErrNotFound        = errors.New("entity not found")
	ErrDuplicate       = errors.New("duplicate entity")
	ErrConstraint      = errors.New("constraint violation")
	ErrNoPrimaryKey    = errors.New("entity has no single primary key")
	ErrInvalidCriteria = search.ErrInvalid
	ErrNotInitialized  = database.ErrNotInitialized
)

// CrudRepository defines basic CRUD operations for a generic entity type.
type CrudRepository[T any] interface {
	GetOne(ctx context.Context, id any) (*T, error)

	GetAll(ctx context.Context) ([]*T, error)

	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	Exists(ctx context.Context, id any) (bool, error)

	// Create inserts new entities. Hooks and dependents run per entity.
	Create(ctx context.Context, entity ...*T) error

	// Save inserts or updates entity depending on its State.
	Save(ctx context.Context, entity *T) error

	// Upsert inserts entities, updating fields on key conflicts. Hooks and
	// dependents are not run.
	Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error

	Update(ctx context.Context, entity *T) error

	Delete(ctx context.Context, id any) error

	DeleteEntity(ctx context.Context, entity *T) error
}

// SearchRepository defines criteria based lookups.
type SearchRepository[T any] interface {
	Find(ctx context.Context, criteria *search.Criteria, orders ...string) ([]*T, error)
	Search(ctx context.Context, criteria *search.Criteria, page *types.PageRequest) (*types.Pagination[T], error)
	Count(ctx context.Context, criteria *search.Criteria) (int, error)
}

// TransactionRepository defines operations executed within a caller's
// transaction. A nil tx starts a new transaction.
type TransactionRepository[T any] interface {
	GetOneWithTx(ctx context.Context, tx *bun.Tx, id any) (*T, error)
	FindWithTx(ctx context.Context, tx *bun.Tx, criteria *search.Criteria, orders ...string) ([]*T, error)
	CreateWithTx(ctx context.Context, tx *bun.Tx, entity ...*T) error
	SaveWithTx(ctx context.Context, tx *bun.Tx, entity *T) error
	UpsertWithTx(ctx context.Context, tx *bun.Tx, fields []string, duplicateKeys []string, entity ...*T) error
	UpdateWithTx(ctx context.Context, tx *bun.Tx, entity *T) error
	DeleteWithTx(ctx context.Context, tx *bun.Tx, id any) error
	DeleteEntityWithTx(ctx context.Context, tx *bun.Tx, entity *T) error
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx *bun.Tx) error) error
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines CRUD, search, pagination, and transactional operations
// and exposes Bun query builders for advanced use cases.
type Repository[T any] interface {
	CrudRepository[T]
	SearchRepository[T]
	PageQueryRepository[T]
	TransactionRepository[T]
	State(ctx context.Context, entity *T) (EntityState, error)
	DB() *bun.DB
	Table() *schema.Table
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}

// Hooks are called around writes of T, inside the write's transaction.
// A returned error aborts the write and rolls the transaction back.
type Hooks[T any] interface {
	BeforeSave(ctx context.Context, tx *bun.Tx, entity *T, state EntityState) error
	AfterSave(ctx context.Context, tx *bun.Tx, entity *T, state EntityState) error
	BeforeDelete(ctx context.Context, tx *bun.Tx, entity *T) error
	AfterDelete(ctx context.Context, tx *bun.Tx, entity *T) error
}

// NopHooks implements Hooks with no-ops. Embed it to override only some hooks.
type NopHooks[T any] struct{}

func (NopHooks[T]) BeforeSave(context.Context, *bun.Tx, *T, EntityState) error { return nil }
func (NopHooks[T]) AfterSave(context.Context, *bun.Tx, *T, EntityState) error  { return nil }
func (NopHooks[T]) BeforeDelete(context.Context, *bun.Tx, *T) error            { return nil }
func (NopHooks[T]) AfterDelete(context.Context, *bun.Tx, *T) error             { return nil }

// Dependent saves and deletes entities owned by a T. SaveDependents runs
// after the parent is written, DeleteDependents before it is removed.
type Dependent[T any] interface {
	SaveDependents(ctx context.Context, tx *bun.Tx, parent *T) error
	DeleteDependents(ctx context.Context, tx *bun.Tx, parent *T) error
}

// Option configures a repository.
type Option[T any] func(*options[T])

type options[T any] struct {
	hooks      Hooks[T]
	dependents []Dependent[T]
	logger     database.Logger
}

// WithHooks sets the hooks called around writes.
func WithHooks[T any](hooks Hooks[T]) Option[T] {
	return func(o *options[T]) {
		if hooks != nil {
			o.hooks = hooks
		}
	}
}

// WithDependents appends dependents cascaded on save and delete.
func WithDependents[T any](dependents ...Dependent[T]) Option[T] {
	return func(o *options[T]) {
		for _, d := range dependents {
			if d != nil {
				o.dependents = append(o.dependents, d)
			}
		}
	}
}

// WithLogger sets the logger, database.GetLogger() by default.
func WithLogger[T any](logger database.Logger) Option[T] {
	return func(o *options[T]) {
		if logger != nil {
			o.logger = logger
		}
	}
}
