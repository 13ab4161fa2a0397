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

package search

import (
	"fmt"
	"strconv"

	"github.com/tomoncle/crudkit/types"
	"gopkg.in/yaml.v3"
)

// Operator is the match applied by a Term.
type Operator int

const (
	Equals Operator = iota
	NotEquals
	Contains
	StartsWith
	EndsWith
	GreaterThan
	GreaterOrEqual
	LessThan
	LessOrEqual
	In
	IsNull
	IsNotNull
)

var operatorTable = types.EnumTable{
	Equals:         {Name: "equals", Desc: "column equals value"},
	NotEquals:      {Name: "not_equals", Desc: "column differs from value"},
	Contains:       {Name: "contains", Desc: "column contains value"},
	StartsWith:     {Name: "starts_with", Desc: "column starts with value"},
	EndsWith:       {Name: "ends_with", Desc: "column ends with value"},
	GreaterThan:    {Name: "gt", Desc: "column is greater than value"},
	GreaterOrEqual: {Name: "gte", Desc: "column is greater than or equal to value"},
	LessThan:       {Name: "lt", Desc: "column is less than value"},
	LessOrEqual:    {Name: "lte", Desc: "column is less than or equal to value"},
	In:             {Name: "in", Desc: "column is one of the values"},
	IsNull:         {Name: "is_null", Desc: "column is NULL"},
	IsNotNull:      {Name: "is_not_null", Desc: "column is not NULL"},
}

var _ types.BaseEnum = Operator(0)

// ParseOperator looks an operator up by name (case-insensitive) or by its
// decimal number. Unknown input yields an operator whose IsValid is false.
func ParseOperator(s string) Operator {
	if n, err := strconv.Atoi(s); err == nil {
		if operatorTable.Contains(n) {
			return Operator(n)
		}
		return Operator(types.IllegalValue)
	}
	return Operator(operatorTable.Lookup(s))
}

func (o Operator) IsValid() bool  { return operatorTable.Contains(int(o)) }
func (o Operator) Number() int    { return int(o) }
func (o Operator) String() string { return o.Name() }
func (o Operator) Name() string   { return operatorTable.NameOf(int(o)) }
func (o Operator) Desc() string   { return operatorTable.DescOf(int(o)) }

// isPattern reports whether the operator is rendered with LIKE.
func (o Operator) isPattern() bool {
	return o == Contains || o == StartsWith || o == EndsWith
}

// needsValue reports whether the operator compares against Term.Value.
func (o Operator) needsValue() bool {
	return o != IsNull && o != IsNotNull && o != Equals && o != NotEquals
}

func (o Operator) MarshalText() ([]byte, error) {
	if !o.IsValid() {
		return nil, fmt.Errorf("invalid search operator: %d", int(o))
	}
	return []byte(o.Name()), nil
}

func (o *Operator) UnmarshalText(text []byte) error {
	op := ParseOperator(string(text))
	if !op.IsValid() {
		return fmt.Errorf("unknown search operator: %q", string(text))
	}
	*o = op
	return nil
}

func (o *Operator) UnmarshalYAML(value *yaml.Node) error {
	return o.UnmarshalText([]byte(value.Value))
}

// Join combines the terms and groups of a Criteria.
type Join int

const (
	JoinAnd Join = iota
	JoinOr
)

var joinTable = types.EnumTable{
	JoinAnd: {Name: "and", Desc: "every condition must match"},
	JoinOr:  {Name: "or", Desc: "at least one condition must match"},
}

var _ types.BaseEnum = Join(0)

// ParseJoin looks a join up by name. Unknown input yields an invalid Join.
func ParseJoin(s string) Join {
	return Join(joinTable.Lookup(s))
}

func (j Join) IsValid() bool  { return joinTable.Contains(int(j)) }
func (j Join) Number() int    { return int(j) }
func (j Join) String() string { return j.Name() }
func (j Join) Name() string   { return joinTable.NameOf(int(j)) }
func (j Join) Desc() string   { return joinTable.DescOf(int(j)) }

func (j Join) separator() string {
	if j == JoinOr {
		return " OR "
	}
	return " AND "
}

func (j Join) MarshalText() ([]byte, error) {
	if !j.IsValid() {
		return nil, fmt.Errorf("invalid search join: %d", int(j))
	}
	return []byte(j.Name()), nil
}

func (j *Join) UnmarshalText(text []byte) error {
	join := ParseJoin(string(text))
	if !join.IsValid() {
		return fmt.Errorf("unknown search join: %q", string(text))
	}
	*j = join
	return nil
}

func (j *Join) UnmarshalYAML(value *yaml.Node) error {
	return j.UnmarshalText([]byte(value.Value))
}
