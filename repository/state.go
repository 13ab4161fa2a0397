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

import "github.com/tomoncle/crudkit/types"

// EntityState is the persistence state of an entity relative to the
// database.
type EntityState int

const (
	// Detached is reported for nil entities.
	Detached EntityState = iota
	// Added entities are inserted on save.
	Added
	// Modified entities are stored and updated on save.
	Modified
	// Deleted labels entities removed by a delete.
	Deleted
)

var entityStateTable = types.EnumTable{
	Detached: {Name: "detached", Desc: "not tracked by the repository"},
	Added:    {Name: "added", Desc: "new, inserted on save"},
	Modified: {Name: "modified", Desc: "stored, updated on save"},
	Deleted:  {Name: "deleted", Desc: "removed from the database"},
}

var _ types.BaseEnum = EntityState(0)

func (s EntityState) IsValid() bool  { return entityStateTable.Contains(int(s)) }
func (s EntityState) Number() int    { return int(s) }
func (s EntityState) String() string { return s.Name() }
func (s EntityState) Name() string   { return entityStateTable.NameOf(int(s)) }
func (s EntityState) Desc() string   { return entityStateTable.DescOf(int(s)) }
