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
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/search"
	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

var uuidType = reflect.TypeOf(uuid.UUID{})

type baseRepositoryImpl[T any] struct {
	db         *bun.DB
	table      *schema.Table
	hooks      Hooks[T]
	dependents []Dependent[T]
	logger     database.Logger
}

// NewRepository returns a generic repository backed by the provided Bun DB.
// T must be a Bun model struct. With a nil db every operation returns
// ErrNotInitialized.
func NewRepository[T any](db *bun.DB, opts ...Option[T]) Repository[T] {
	o := options[T]{hooks: NopHooks[T]{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = database.GetLogger()
	}
	r := &baseRepositoryImpl[T]{
		db:         db,
		hooks:      o.hooks,
		dependents: o.dependents,
		logger:     o.logger,
	}
	if db != nil {
		r.table = db.Table(reflect.TypeFor[T]())
	}
	return r
}

func (r *baseRepositoryImpl[T]) DB() *bun.DB { return r.db }

func (r *baseRepositoryImpl[T]) Table() *schema.Table { return r.table }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.db.NewSelect().Model((*T)(nil)) }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.db.NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.db.NewUpdate().Model((*T)(nil)) }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.db.NewDelete().Model((*T)(nil)) }

func (r *baseRepositoryImpl[T]) idb(tx *bun.Tx) bun.IDB {
	if tx != nil {
		return tx
	}
	return r.db
}

// plain reports whether writes need no per-entity work.
func (r *baseRepositoryImpl[T]) plain() bool {
	_, nop := r.hooks.(NopHooks[T])
	return nop && len(r.dependents) == 0
}

func (r *baseRepositoryImpl[T]) pk() (*schema.Field, error) {
	if r.db == nil {
		return nil, ErrNotInitialized
	}
	if len(r.table.PKs) != 1 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, r.table.TypeName)
	}
	return r.table.PKs[0], nil
}

func checkEntities[T any](entities []*T) error {
	for i, entity := range entities {
		if entity == nil {
			return fmt.Errorf("%w: index %d", ErrNilEntity, i)
		}
	}
	return nil
}

// translate maps driver errors onto the repository's sentinel errors. The
// original error stays in the chain.
func translate(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) || errors.Is(err, ErrConstraint) {
		return err
	}
	switch kind := database.Classify(err); {
	case kind == database.NoRowsErr:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case kind == database.DuplicateKeyErr:
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case kind.IsConstraintViolation():
		return fmt.Errorf("%w: %w", ErrConstraint, err)
	}
	return err
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, id any) (*T, error) {
	return r.getOne(ctx, r.db, id)
}

func (r *baseRepositoryImpl[T]) GetOneWithTx(ctx context.Context, tx *bun.Tx, id any) (*T, error) {
	return r.getOne(ctx, r.idb(tx), id)
}

func (r *baseRepositoryImpl[T]) getOne(ctx context.Context, db bun.IDB, id any) (*T, error) {
	pk, err := r.pk()
	if err != nil {
		return nil, err
	}
	entity := new(T)
	err = db.NewSelect().Model(entity).Where("?TableAlias.? = ?", bun.Ident(pk.Name), id).Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) Exists(ctx context.Context, id any) (bool, error) {
	pk, err := r.pk()
	if err != nil {
		return false, err
	}
	exists, err := r.db.NewSelect().Model((*T)(nil)).Where("?TableAlias.? = ?", bun.Ident(pk.Name), id).Exists(ctx)
	return exists, translate(err)
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	if r.db == nil {
		return nil, ErrNotInitialized
	}
	var entities []*T
	err := r.db.NewSelect().Model(&entities).Scan(ctx)
	return entities, translate(err)
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	if r.db == nil {
		return nil, ErrNotInitialized
	}
	var entities []*T
	query := r.db.NewSelect().Model(&entities)
	if !filter.IsEmpty() {
		query = query.Where(filter.Schema, filter.Args...)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, translate(err)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	if r.db == nil {
		return nil, ErrNotInitialized
	}
	var entities []*T
	err := r.db.NewSelect().Model(&entities).Where(query, args...).Scan(ctx)
	return entities, translate(err)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if r.db == nil {
		return nil, ErrNotInitialized
	}
	var entities []*T
	query := r.db.NewSelect().Model(&entities)
	return r.paginate(ctx, query, &entities, pageRequest)
}

// paginate counts query, then scans one page of it into entities. Without
// explicit orders the page is ordered by primary key.
func (r *baseRepositoryImpl[T]) paginate(ctx context.Context, query *bun.SelectQuery, entities *[]*T, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if filter := pageRequest.GetFilter(); !filter.IsEmpty() {
		query = query.Where(filter.Schema, filter.Args...)
	}
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil {
		return nil, translate(err)
	}
	if total == 0 {
		return pagination, nil
	}

	if orders := pageRequest.GetOrders(); len(orders) > 0 {
		query = query.Order(orders...)
	} else {
		for _, pk := range r.table.PKs {
			query = query.OrderExpr("?TableAlias.? ASC", bun.Ident(pk.Name))
		}
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	pagination.Total = total
	if len(*entities) > 0 {
		pagination.Items = *entities
	}
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) matching(db bun.IDB, dest any, criteria *search.Criteria) (*bun.SelectQuery, error) {
	if r.db == nil {
		return nil, ErrNotInitialized
	}
	bound, err := criteria.Bind(r.table)
	if err != nil {
		return nil, err
	}
	return db.NewSelect().Model(dest).ApplyQueryBuilder(bound.Builder()), nil
}

func (r *baseRepositoryImpl[T]) Find(ctx context.Context, criteria *search.Criteria, orders ...string) ([]*T, error) {
	return r.find(ctx, r.db, criteria, orders)
}

func (r *baseRepositoryImpl[T]) FindWithTx(ctx context.Context, tx *bun.Tx, criteria *search.Criteria, orders ...string) ([]*T, error) {
	return r.find(ctx, r.idb(tx), criteria, orders)
}

func (r *baseRepositoryImpl[T]) find(ctx context.Context, db bun.IDB, criteria *search.Criteria, orders []string) ([]*T, error) {
	var entities []*T
	query, err := r.matching(db, &entities, criteria)
	if err != nil {
		return nil, err
	}
	if len(orders) > 0 {
		query = query.Order(orders...)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, translate(err)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Search(ctx context.Context, criteria *search.Criteria, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	var entities []*T
	query, err := r.matching(r.db, &entities, criteria)
	if err != nil {
		return nil, err
	}
	return r.paginate(ctx, query, &entities, pageRequest)
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, criteria *search.Criteria) (int, error) {
	query, err := r.matching(r.db, (*T)(nil), criteria)
	if err != nil {
		return 0, err
	}
	total, err := query.Count(ctx)
	return total, translate(err)
}

func (r *baseRepositoryImpl[T]) State(ctx context.Context, entity *T) (EntityState, error) {
	return r.state(ctx, r.db, entity)
}

// state reports Added for entities whose primary key is zero or not stored
// yet, and Modified for stored ones.
func (r *baseRepositoryImpl[T]) state(ctx context.Context, db bun.IDB, entity *T) (EntityState, error) {
	if entity == nil {
		return Detached, nil
	}
	if r.db == nil {
		return Detached, ErrNotInitialized
	}
	if len(r.table.PKs) == 0 {
		return Detached, fmt.Errorf("%w: %s", ErrNoPrimaryKey, r.table.TypeName)
	}
	v := reflect.ValueOf(entity).Elem()
	zero := true
	for _, pk := range r.table.PKs {
		if !pk.HasZeroValue(v) {
			zero = false
			break
		}
	}
	if zero {
		return Added, nil
	}
	exists, err := db.NewSelect().Model(entity).WherePK().Exists(ctx)
	if err != nil {
		return Detached, translate(err)
	}
	if exists {
		return Modified, nil
	}
	return Added, nil
}

// assignKeys fills zero uuid.UUID primary keys.
func (r *baseRepositoryImpl[T]) assignKeys(entity *T) {
	v := reflect.ValueOf(entity).Elem()
	for _, pk := range r.table.PKs {
		if pk.StructField.Type != uuidType || !pk.HasZeroValue(v) {
			continue
		}
		pk.Value(v).Set(reflect.ValueOf(uuid.New()))
	}
}

func (r *baseRepositoryImpl[T]) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *bun.Tx) error) error {
	if r.db == nil {
		return ErrNotInitialized
	}
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &tx)
	})
}

// inTx runs fn in tx, or in a new transaction when tx is nil.
func (r *baseRepositoryImpl[T]) inTx(ctx context.Context, tx *bun.Tx, fn func(ctx context.Context, tx *bun.Tx) error) error {
	if tx != nil {
		return fn(ctx, tx)
	}
	return r.RunInTx(ctx, fn)
}

// write saves entity as state, running hooks and dependents around it.
func (r *baseRepositoryImpl[T]) write(ctx context.Context, tx *bun.Tx, entity *T, state EntityState) error {
	if err := r.hooks.BeforeSave(ctx, tx, entity, state); err != nil {
		return err
	}

	if state == Added {
		r.assignKeys(entity)
		if _, err := tx.NewInsert().Model(entity).Exec(ctx); err != nil {
			return translate(err)
		}
	} else if err := r.update(ctx, tx, entity); err != nil {
		return err
	}

	for _, dependent := range r.dependents {
		if err := dependent.SaveDependents(ctx, tx, entity); err != nil {
			return err
		}
	}
	if err := r.hooks.AfterSave(ctx, tx, entity, state); err != nil {
		return err
	}
	r.logger.Debug("Entity saved", "table", r.table.Name, "state", state.String())
	return nil
}

func (r *baseRepositoryImpl[T]) update(ctx context.Context, db bun.IDB, entity *T) error {
	res, err := db.NewUpdate().Model(entity).WherePK().Exec(ctx)
	if err != nil {
		return translate(err)
	}
	// MySQL reports rows changed, not rows matched.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		exists, err := db.NewSelect().Model(entity).WherePK().Exists(ctx)
		if err != nil {
			return translate(err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrNotFound, r.table.TypeName)
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	return r.CreateWithTx(ctx, nil, entity...)
}

func (r *baseRepositoryImpl[T]) CreateWithTx(ctx context.Context, tx *bun.Tx, entity ...*T) error {
	if r.db == nil {
		return ErrNotInitialized
	}
	if err := checkEntities(entity); err != nil {
		return err
	}
	if len(entity) == 0 {
		return nil
	}
	if r.plain() {
		for _, e := range entity {
			r.assignKeys(e)
		}
		entities := append([]*T(nil), entity...)
		_, err := r.idb(tx).NewInsert().Model(&entities).Exec(ctx)
		return translate(err)
	}
	return r.inTx(ctx, tx, func(ctx context.Context, tx *bun.Tx) error {
		for _, e := range entity {
			if err := r.write(ctx, tx, e, Added); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *baseRepositoryImpl[T]) Save(ctx context.Context, entity *T) error {
	return r.SaveWithTx(ctx, nil, entity)
}

func (r *baseRepositoryImpl[T]) SaveWithTx(ctx context.Context, tx *bun.Tx, entity *T) error {
	if r.db == nil {
		return ErrNotInitialized
	}
	if entity == nil {
		return ErrNilEntity
	}
	return r.inTx(ctx, tx, func(ctx context.Context, tx *bun.Tx) error {
		state, err := r.state(ctx, tx, entity)
		if err != nil {
			return err
		}
		return r.write(ctx, tx, entity, state)
	})
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	return r.UpdateWithTx(ctx, nil, entity)
}

func (r *baseRepositoryImpl[T]) UpdateWithTx(ctx context.Context, tx *bun.Tx, entity *T) error {
	if r.db == nil {
		return ErrNotInitialized
	}
	if entity == nil {
		return ErrNilEntity
	}
	if r.plain() {
		return r.update(ctx, r.idb(tx), entity)
	}
	return r.inTx(ctx, tx, func(ctx context.Context, tx *bun.Tx) error {
		return r.write(ctx, tx, entity, Modified)
	})
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	return r.DeleteWithTx(ctx, nil, id)
}

func (r *baseRepositoryImpl[T]) DeleteWithTx(ctx context.Context, tx *bun.Tx, id any) error {
	if r.db == nil {
		return ErrNotInitialized
	}
	if id == nil {
		return fmt.Errorf("%w: id cannot be nil", ErrNilEntity)
	}
	return r.inTx(ctx, tx, func(ctx context.Context, tx *bun.Tx) error {
		entity, err := r.getOne(ctx, tx, id)
		if err != nil {
			return err
		}
		return r.remove(ctx, tx, entity)
	})
}

func (r *baseRepositoryImpl[T]) DeleteEntity(ctx context.Context, entity *T) error {
	return r.DeleteEntityWithTx(ctx, nil, entity)
}

func (r *baseRepositoryImpl[T]) DeleteEntityWithTx(ctx context.Context, tx *bun.Tx, entity *T) error {
	if r.db == nil {
		return ErrNotInitialized
	}
	if entity == nil {
		return ErrNilEntity
	}
	return r.inTx(ctx, tx, func(ctx context.Context, tx *bun.Tx) error {
		return r.remove(ctx, tx, entity)
	})
}

// remove deletes dependents first, then entity.
func (r *baseRepositoryImpl[T]) remove(ctx context.Context, tx *bun.Tx, entity *T) error {
	if err := r.hooks.BeforeDelete(ctx, tx, entity); err != nil {
		return err
	}
	for _, dependent := range r.dependents {
		if err := dependent.DeleteDependents(ctx, tx, entity); err != nil {
			return err
		}
	}

	res, err := tx.NewDelete().Model(entity).WherePK().Exec(ctx)
	if err != nil {
		return translate(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, r.table.TypeName)
	}

	if err := r.hooks.AfterDelete(ctx, tx, entity); err != nil {
		return err
	}
	r.logger.Debug("Entity deleted", "table", r.table.Name, "state", Deleted.String())
	return nil
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error {
	return r.multipleUpsert(ctx, nil, fields, duplicateKeys, entity...)
}

func (r *baseRepositoryImpl[T]) UpsertWithTx(ctx context.Context, tx *bun.Tx, fields []string, duplicateKeys []string, entity ...*T) error {
	return r.multipleUpsert(ctx, tx, fields, duplicateKeys, entity...)
}

func (r *baseRepositoryImpl[T]) multipleUpsert(ctx context.Context, tx *bun.Tx, fields []string, duplicateKeys []string, entity ...*T) error {
	if r.db == nil {
		return ErrNotInitialized
	}
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}
	if err := checkEntities(entity); err != nil {
		return err
	}
	if len(entity) == 0 {
		return nil
	}

	db := r.idb(tx)
	entities := append([]*T(nil), entity...)
	for _, e := range entities {
		r.assignKeys(e)
	}

	var err error
	switch {
	case r.db.HasFeature(feature.InsertOnConflict):
		err = r.upsertOnConflict(ctx, db.NewInsert(), fields, duplicateKeys, entities)
	case r.db.HasFeature(feature.InsertOnDuplicateKey):
		err = r.upsertOnDuplicateKey(ctx, db.NewInsert(), fields, entities)
	default:
		err = r.upsertFallback(ctx, db, fields, entities)
	}
	return translate(err)
}

func (r *baseRepositoryImpl[T]) upsertOnDuplicateKey(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, entities []*T) error {
	insertQuery = insertQuery.Model(&entities).On("DUPLICATE KEY UPDATE")
	for _, field := range fields {
		insertQuery = insertQuery.Set("? = VALUES(?)", bun.Ident(field), bun.Ident(field))
	}
	_, err := insertQuery.Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertOnConflict(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, duplicateKeys []string, entities []*T) error {
	keys := make([]bun.Ident, 0, len(duplicateKeys))
	for _, key := range duplicateKeys {
		keys = append(keys, bun.Ident(key))
	}
	if len(keys) == 0 {
		for _, pk := range r.table.PKs {
			keys = append(keys, bun.Ident(pk.Name))
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: %s", ErrNoPrimaryKey, r.table.TypeName)
	}

	insertQuery = insertQuery.Model(&entities).On("CONFLICT (?) DO UPDATE", bun.In(keys))
	for _, field := range fields {
		insertQuery = insertQuery.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
	}
	_, err := insertQuery.Exec(ctx)
	return err
}

// upsertFallback inserts each entity and, when the insert fails, updates
// fields of the stored row. MySQL, PostgreSQL and SQLite use a single
// statement instead; this serves dialects without either upsert form.
func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, db bun.IDB, fields []string, entities []*T) error {
	for _, entity := range entities {
		_, err := db.NewInsert().Model(entity).Exec(ctx)
		if err != nil {
			_, updateErr := db.NewUpdate().Model(entity).Column(fields...).WherePK().Exec(ctx)
			if updateErr != nil {
				return fmt.Errorf("upsert failed for entity: insert error: %w, update error: %v", err, updateErr)
			}
		}
	}
	return nil
}
