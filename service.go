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

package crudkit

import (
	"context"
	"sync"

	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/repository"
	"github.com/tomoncle/crudkit/search"
	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
)

// Service is the application facing API of one model. Writes go through
// the repository's hooks and dependents; reads accept legacy filters or
// search criteria.
type Service[T any] interface {
	Get(ctx context.Context, id any) (*T, error)
	All(ctx context.Context) ([]*T, error)
	// List filters with a raw WHERE fragment.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
	Find(ctx context.Context, criteria *search.Criteria, orders ...string) ([]*T, error)
	Search(ctx context.Context, criteria *search.Criteria, page *types.PageRequest) (*types.Pagination[T], error)
	Count(ctx context.Context, criteria *search.Criteria) (int, error)

	// State reports whether model would be inserted or updated by SaveAll.
	State(ctx context.Context, model *T) (repository.EntityState, error)

	// Save inserts new models.
	Save(ctx context.Context, model ...*T) error
	// SaveAll inserts or updates each model by its state, atomically.
	SaveAll(ctx context.Context, model ...*T) error
	Update(ctx context.Context, model *T) error
	// Delete loads the model by id and removes it with its dependents.
	Delete(ctx context.Context, id any) error
	// Remove deletes an already loaded model with its dependents.
	Remove(ctx context.Context, model *T) error
	// SaveOrUpdate is a dialect upsert on duplicateKeys, writing fields on
	// conflict. Hooks do not run.
	SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error

	SaveWithTx(ctx context.Context, tx *bun.Tx, model ...*T) error
	SaveOrUpdateWithTx(ctx context.Context, tx *bun.Tx, fields []string, duplicateKeys []string, model ...*T) error
	UpdateWithTx(ctx context.Context, tx *bun.Tx, model *T) error
	DeleteWithTx(ctx context.Context, tx *bun.Tx, id any) error

	Repository() repository.Repository[T]

	// The builders are bound to the model's table and need an initialized
	// database.
	SelectBuilder() *bun.SelectQuery
	InsertBuilder() *bun.InsertQuery
	UpdateBuilder() *bun.UpdateQuery
	DeleteBuilder() *bun.DeleteQuery
}

type baseServiceImpl[T any] struct {
	mu   sync.Mutex
	repo repository.Repository[T]
	opts []repository.Option[T]
}

// NewService returns a default Service implementation using the generic
// repository backed by the global database connection. The repository is
// created on first use, so the service may be declared before InitDB.
func NewService[T any](opts ...repository.Option[T]) Service[T] {
	return &baseServiceImpl[T]{opts: opts}
}

// NewServiceWithRepository returns a Service over an existing repository.
func NewServiceWithRepository[T any](repo repository.Repository[T]) Service[T] {
	return &baseServiceImpl[T]{repo: repo}
}

// baseRepo binds the repository to the global database on first use.
// Before InitDB it returns an unbound repository whose operations fail with
// repository.ErrNotInitialized; that one is not kept.
func (s *baseServiceImpl[T]) baseRepo() repository.Repository[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo != nil {
		return s.repo
	}
	db := database.GetDB()
	repo := repository.NewRepository[T](db, s.opts...)
	if db != nil {
		s.repo = repo
	}
	return repo
}

func (s *baseServiceImpl[T]) Repository() repository.Repository[T] {
	return s.baseRepo()
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	return s.baseRepo().Create(ctx, model...)
}

func (s *baseServiceImpl[T]) SaveAll(ctx context.Context, model ...*T) error {
	repo := s.baseRepo()
	return repo.RunInTx(ctx, func(ctx context.Context, tx *bun.Tx) error {
		for _, m := range model {
			if err := repo.SaveWithTx(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error {
	return s.baseRepo().Upsert(ctx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	return s.baseRepo().GetOne(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.baseRepo().GetAll(ctx)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	return s.baseRepo().List(ctx, filter)
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	return s.baseRepo().Query(ctx, query, args...)
}

func (s *baseServiceImpl[T]) Find(ctx context.Context, criteria *search.Criteria, orders ...string) ([]*T, error) {
	return s.baseRepo().Find(ctx, criteria, orders...)
}

func (s *baseServiceImpl[T]) Search(ctx context.Context, criteria *search.Criteria, page *types.PageRequest) (*types.Pagination[T], error) {
	return s.baseRepo().Search(ctx, criteria, page)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, criteria *search.Criteria) (int, error) {
	return s.baseRepo().Count(ctx, criteria)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	return s.baseRepo().Update(ctx, model)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	return s.baseRepo().Delete(ctx, id)
}

func (s *baseServiceImpl[T]) Remove(ctx context.Context, model *T) error {
	return s.baseRepo().DeleteEntity(ctx, model)
}

func (s *baseServiceImpl[T]) State(ctx context.Context, model *T) (repository.EntityState, error) {
	return s.baseRepo().State(ctx, model)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	return s.baseRepo().Page(ctx, page)
}

func (s *baseServiceImpl[T]) SaveWithTx(ctx context.Context, tx *bun.Tx, model ...*T) error {
	return s.baseRepo().CreateWithTx(ctx, tx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdateWithTx(ctx context.Context, tx *bun.Tx, fields []string, duplicateKeys []string, model ...*T) error {
	return s.baseRepo().UpsertWithTx(ctx, tx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) UpdateWithTx(ctx context.Context, tx *bun.Tx, model *T) error {
	return s.baseRepo().UpdateWithTx(ctx, tx, model)
}

func (s *baseServiceImpl[T]) DeleteWithTx(ctx context.Context, tx *bun.Tx, id any) error {
	return s.baseRepo().DeleteWithTx(ctx, tx, id)
}

func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	return s.baseRepo().NewSelect()
}

func (s *baseServiceImpl[T]) InsertBuilder() *bun.InsertQuery {
	return s.baseRepo().NewInsert()
}

func (s *baseServiceImpl[T]) UpdateBuilder() *bun.UpdateQuery {
	return s.baseRepo().NewUpdate()
}

func (s *baseServiceImpl[T]) DeleteBuilder() *bun.DeleteQuery {
	return s.baseRepo().NewDelete()
}
