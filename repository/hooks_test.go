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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/search"
	"github.com/uptrace/bun"
)

var errBoom = errors.New("boom")

type bookHooks struct {
	NopHooks[book]
	calls  []string
	failOn string
}

func (h *bookHooks) record(name string) error {
	h.calls = append(h.calls, name)
	if h.failOn == name {
		return errBoom
	}
	return nil
}

func (h *bookHooks) BeforeSave(_ context.Context, tx *bun.Tx, _ *book, state EntityState) error {
	if tx == nil {
		return errors.New("hook without transaction")
	}
	return h.record("before_save:" + state.String())
}

func (h *bookHooks) AfterSave(_ context.Context, _ *bun.Tx, _ *book, state EntityState) error {
	return h.record("after_save:" + state.String())
}

func (h *bookHooks) BeforeDelete(_ context.Context, _ *bun.Tx, _ *book) error {
	return h.record("before_delete")
}

func (h *bookHooks) AfterDelete(_ context.Context, _ *bun.Tx, _ *book) error {
	return h.record("after_delete")
}

// auditHooks only overrides AfterSave.
type auditHooks struct {
	NopHooks[author]
	saved []string
}

func (h *auditHooks) AfterSave(_ context.Context, _ *bun.Tx, a *author, _ EntityState) error {
	h.saved = append(h.saved, a.Name)
	return nil
}

func TestHooksOrder(t *testing.T) {
	ctx := context.Background()
	hooks := &bookHooks{}
	repo := NewRepository[book](newTestDB(t), WithHooks[book](hooks))

	b := &book{AuthorID: 1, Title: "TAOCP"}
	require.NoError(t, repo.Save(ctx, b))
	b.Pages = 672
	require.NoError(t, repo.Save(ctx, b))
	require.NoError(t, repo.Update(ctx, b))
	require.NoError(t, repo.Create(ctx, &book{AuthorID: 1, Title: "Vol 2"}))
	require.NoError(t, repo.Delete(ctx, b.ID))

	assert.Equal(t, []string{
		"before_save:added", "after_save:added",
		"before_save:modified", "after_save:modified",
		"before_save:modified", "after_save:modified",
		"before_save:added", "after_save:added",
		"before_delete", "after_delete",
	}, hooks.calls)
}

func TestHookErrorRollsBack(t *testing.T) {
	ctx := context.Background()

	for _, stage := range []string{"before_save:added", "after_save:added"} {
		t.Run(stage, func(t *testing.T) {
			hooks := &bookHooks{failOn: stage}
			repo := NewRepository[book](newTestDB(t), WithHooks[book](hooks))

			err := repo.Create(ctx, &book{AuthorID: 1, Title: "one"}, &book{AuthorID: 1, Title: "two"})
			assert.ErrorIs(t, err, errBoom)

			n, err := repo.Count(ctx, nil)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}

	t.Run("after_delete", func(t *testing.T) {
		hooks := &bookHooks{failOn: "after_delete"}
		repo := NewRepository[book](newTestDB(t), WithHooks[book](hooks))
		b := &book{AuthorID: 1, Title: "stays"}
		require.NoError(t, repo.Save(ctx, b))

		assert.ErrorIs(t, repo.DeleteEntity(ctx, b), errBoom)
		exists, err := repo.Exists(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestPartialHooks(t *testing.T) {
	ctx := context.Background()
	hooks := &auditHooks{}
	repo := NewRepository[author](newTestDB(t), WithHooks[author](hooks))

	require.NoError(t, repo.Create(ctx, &author{Name: "a"}, &author{Name: "b"}))
	require.NoError(t, repo.Delete(ctx, int64(1)))
	assert.Equal(t, []string{"a", "b"}, hooks.saved)
}

func TestHasManyCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	hooks := &bookHooks{}
	books := NewRepository[book](db, WithHooks[book](hooks))

	rel, err := HasMany[author, book](books, "AuthorID", func(a *author) []*book { return a.Books })
	require.NoError(t, err)
	authors := NewRepository[author](db, WithDependents[author](rel))

	a := &author{Name: "knuth", Books: []*book{{Title: "Vol 1"}, {Title: "Vol 2"}}}
	require.NoError(t, authors.Save(ctx, a))
	for _, b := range a.Books {
		assert.NotZero(t, b.ID)
		assert.Equal(t, a.ID, b.AuthorID)
	}

	other := &author{Name: "wirth", Books: []*book{{Title: "Oberon"}}}
	require.NoError(t, authors.Save(ctx, other))

	a.Books[0].Title = "Fundamental Algorithms"
	require.NoError(t, authors.Save(ctx, a))
	got, err := books.GetOne(ctx, a.Books[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Fundamental Algorithms", got.Title)

	hooks.calls = nil
	require.NoError(t, authors.Delete(ctx, a.ID))
	assert.Equal(t, []string{"before_delete", "after_delete", "before_delete", "after_delete"}, hooks.calls)

	remaining, err := books.Find(ctx, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "Oberon", remaining[0].Title)

	fk := rel.Constraint()
	assert.Equal(t, "fk_books_author_id", fk.GenerateConstraintName())
	assert.Equal(t, "CASCADE", fk.OnDelete)
	assert.Contains(t, database.RegisteredForeignKeys(), fk)
}

func TestHasManyRollsBackParent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	books := NewRepository[book](db, WithHooks[book](&bookHooks{failOn: "before_save:added"}))
	rel, err := HasMany[author, book](books, "author_id", func(a *author) []*book { return a.Books })
	require.NoError(t, err)
	authors := NewRepository[author](db, WithDependents[author](rel))

	err = authors.Save(ctx, &author{Name: "orphan", Books: []*book{{Title: "lost"}}})
	assert.ErrorIs(t, err, errBoom)

	n, err := authors.Count(ctx, search.And(search.Eq("name", "orphan")))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHasManyDeleteOnly(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	books := NewRepository[book](db)
	rel, err := HasMany[author, book](books, "author_id", nil)
	require.NoError(t, err)
	authors := NewRepository[author](db, WithDependents[author](rel))

	a := &author{Name: "solo"}
	require.NoError(t, authors.Save(ctx, a))
	require.NoError(t, books.Create(ctx, &book{AuthorID: a.ID, Title: "x"}, &book{AuthorID: a.ID, Title: "y"}))

	require.NoError(t, authors.DeleteEntity(ctx, a))
	n, err := books.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHasManyErrors(t *testing.T) {
	db := newTestDB(t)
	books := NewRepository[book](db)

	_, err := HasMany[author, book](books, "writer_id", nil)
	assert.Error(t, err)

	_, err = HasMany[setting, book](books, "author_id", nil)
	assert.ErrorIs(t, err, ErrNoPrimaryKey)

	_, err = HasMany[author, book](NewRepository[book](nil), "author_id", nil)
	assert.Error(t, err)
}

func TestEntityStateEnum(t *testing.T) {
	assert.Equal(t, "added", Added.String())
	assert.Equal(t, "deleted", Deleted.Name())
	assert.True(t, Modified.IsValid())
	assert.False(t, EntityState(9).IsValid())
	assert.Equal(t, "unknown", EntityState(9).String())
}
