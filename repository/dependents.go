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
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/search"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// HasManyRelation cascades writes from a parent P to the C rows whose
// foreign key column references the parent's primary key.
type HasManyRelation[P, C any] struct {
	children   Repository[C]
	foreignKey *schema.Field
	parentKey  *schema.Field
	items      func(parent *P) []*C
	constraint database.ForeignKeyConstraint
}

var _ Dependent[struct{}] = (*HasManyRelation[struct{}, struct{}])(nil)

// HasMany relates children to P through the foreignKey column of C (SQL or
// Go field name). When items is set, the children it returns are linked to
// the parent and saved through the children repository after every parent
// save. Children are always deleted before their parent.
//
// The relation is registered as an ON DELETE CASCADE foreign key for the
// migration step.
func HasMany[P, C any](children Repository[C], foreignKey string, items func(parent *P) []*C) (*HasManyRelation[P, C], error) {
	if children == nil || children.DB() == nil {
		return nil, fmt.Errorf("children repository is not initialized")
	}
	childTable := children.Table()
	fk := lookupField(childTable, foreignKey)
	if fk == nil {
		return nil, fmt.Errorf("unknown foreign key %q of %s", foreignKey, childTable.TypeName)
	}
	parentTable := children.DB().Table(reflect.TypeFor[P]())
	if len(parentTable.PKs) != 1 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, parentTable.TypeName)
	}

	rel := &HasManyRelation[P, C]{
		children:   children,
		foreignKey: fk,
		parentKey:  parentTable.PKs[0],
		items:      items,
		constraint: database.ForeignKeyConstraint{
			Table:           childTable.Name,
			Column:          fk.Name,
			ReferenceTable:  parentTable.Name,
			ReferenceColumn: parentTable.PKs[0].Name,
			OnDelete:        "CASCADE",
		},
	}
	database.RegisterForeignKey(rel.constraint)
	return rel, nil
}

// Constraint returns the foreign key describing the relation.
func (h *HasManyRelation[P, C]) Constraint() database.ForeignKeyConstraint {
	return h.constraint
}

func (h *HasManyRelation[P, C]) SaveDependents(ctx context.Context, tx *bun.Tx, parent *P) error {
	if h.items == nil {
		return nil
	}
	key := h.parentKey.Value(reflect.ValueOf(parent).Elem())
	for _, child := range h.items(parent) {
		if child == nil {
			continue
		}
		if err := h.link(child, key); err != nil {
			return err
		}
		if err := h.children.SaveWithTx(ctx, tx, child); err != nil {
			return fmt.Errorf("save %s: %w", h.constraint.Table, err)
		}
	}
	return nil
}

func (h *HasManyRelation[P, C]) DeleteDependents(ctx context.Context, tx *bun.Tx, parent *P) error {
	key := h.parentKey.Value(reflect.ValueOf(parent).Elem()).Interface()
	children, err := h.children.FindWithTx(ctx, tx, search.And(search.Eq(h.foreignKey.Name, key)))
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := h.children.DeleteEntityWithTx(ctx, tx, child); err != nil {
			return fmt.Errorf("delete %s: %w", h.constraint.Table, err)
		}
	}
	return nil
}

// link sets the child's foreign key to the parent key.
func (h *HasManyRelation[P, C]) link(child *C, key reflect.Value) error {
	fv := h.foreignKey.Value(reflect.ValueOf(child).Elem())
	switch {
	case key.Type().AssignableTo(fv.Type()):
		fv.Set(key)
	case key.Type().ConvertibleTo(fv.Type()) && fv.Kind() != reflect.String:
		fv.Set(key.Convert(fv.Type()))
	case fv.Kind() == reflect.Ptr && key.Type().AssignableTo(fv.Type().Elem()):
		ptr := reflect.New(key.Type())
		ptr.Elem().Set(key)
		fv.Set(ptr)
	default:
		return fmt.Errorf("cannot assign %s to foreign key %s", key.Type(), h.foreignKey.GoName)
	}
	return nil
}

func lookupField(table *schema.Table, name string) *schema.Field {
	if f, ok := table.FieldMap[name]; ok {
		return f
	}
	for _, f := range table.Fields {
		if strings.EqualFold(f.GoName, name) {
			return f
		}
	}
	return nil
}
