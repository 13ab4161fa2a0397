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
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error of a Criteria.
var ErrInvalid = errors.New("invalid search criteria")

// likeEscaper escapes LIKE wildcards for use with ESCAPE '!'.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Node is an element of a Criteria: a Term or a nested *Criteria.
type Node interface {
	node()
}

// Term is a single column predicate.
type Term struct {
	Field      string   `yaml:"field" json:"field"`
	Operator   Operator `yaml:"op" json:"op"`
	Value      any      `yaml:"value,omitempty" json:"value,omitempty"`
	IgnoreCase bool     `yaml:"ignore_case,omitempty" json:"ignore_case,omitempty"`
}

func (Term) node() {}

// Criteria is a group of terms and nested groups combined with Join.
// A nil or empty Criteria matches every row.
type Criteria struct {
	Join   Join        `yaml:"join" json:"join"`
	Terms  []Term      `yaml:"terms,omitempty" json:"terms,omitempty"`
	Groups []*Criteria `yaml:"groups,omitempty" json:"groups,omitempty"`
}

func (*Criteria) node() {}

// Where builds a term.
func Where(field string, op Operator, value any) Term {
	return Term{Field: field, Operator: op, Value: value}
}

func Eq(field string, value any) Term { return Where(field, Equals, value) }

func Like(field string, value string) Term { return Where(field, Contains, value) }

func Prefix(field string, value string) Term { return Where(field, StartsWith, value) }

func Suffix(field string, value string) Term { return Where(field, EndsWith, value) }

// Fold returns a copy of t compared case-insensitively.
func (t Term) Fold() Term {
	t.IgnoreCase = true
	return t
}

// And groups nodes so that all of them must match.
func And(nodes ...Node) *Criteria {
	return group(JoinAnd, nodes)
}

// Or groups nodes so that at least one of them must match.
func Or(nodes ...Node) *Criteria {
	return group(JoinOr, nodes)
}

func group(join Join, nodes []Node) *Criteria {
	c := &Criteria{Join: join}
	for _, n := range nodes {
		c.add(n)
	}
	return c
}

func (c *Criteria) add(n Node) {
	switch v := n.(type) {
	case Term:
		c.Terms = append(c.Terms, v)
	case *Criteria:
		if v != nil {
			c.Groups = append(c.Groups, v)
		}
	}
}

// Add appends nodes to c and returns c.
func (c *Criteria) Add(nodes ...Node) *Criteria {
	for _, n := range nodes {
		c.add(n)
	}
	return c
}

// IsEmpty reports whether c has no terms in itself or any nested group.
func (c *Criteria) IsEmpty() bool {
	if c == nil {
		return true
	}
	if len(c.Terms) > 0 {
		return false
	}
	for _, g := range c.Groups {
		if !g.IsEmpty() {
			return false
		}
	}
	return true
}

// Parse decodes a YAML or JSON document into a Criteria.
func Parse(data []byte) (*Criteria, error) {
	var c Criteria
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &c, nil
}

// Validate checks c against the columns of table. A nil table skips the
// column check.
func (c *Criteria) Validate(table *schema.Table) error {
	_, err := c.Bind(table)
	return err
}

// Bind validates c and returns a copy whose fields are SQL column names.
// Fields may be given as column names or Go struct field names.
func (c *Criteria) Bind(table *schema.Table) (*Criteria, error) {
	if c == nil {
		return nil, nil
	}
	if !c.Join.IsValid() {
		return nil, fmt.Errorf("%w: unknown join %d", ErrInvalid, int(c.Join))
	}
	out := &Criteria{Join: c.Join}
	for _, t := range c.Terms {
		bound, err := bindTerm(t, table)
		if err != nil {
			return nil, err
		}
		out.Terms = append(out.Terms, bound)
	}
	for _, g := range c.Groups {
		bound, err := g.Bind(table)
		if err != nil {
			return nil, err
		}
		if bound != nil {
			out.Groups = append(out.Groups, bound)
		}
	}
	return out, nil
}

func bindTerm(t Term, table *schema.Table) (Term, error) {
	if t.Field == "" {
		return t, fmt.Errorf("%w: empty field", ErrInvalid)
	}
	if !t.Operator.IsValid() {
		return t, fmt.Errorf("%w: unknown operator %d on %q", ErrInvalid, int(t.Operator), t.Field)
	}
	if table != nil {
		column, ok := lookupColumn(table, t.Field)
		if !ok {
			return t, fmt.Errorf("%w: unknown field %q of %s", ErrInvalid, t.Field, table.TypeName)
		}
		t.Field = column
	}

	switch {
	case t.Operator == In:
		v := reflect.ValueOf(t.Value)
		if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) || v.Len() == 0 {
			return t, fmt.Errorf("%w: %s on %q needs a non-empty list", ErrInvalid, t.Operator, t.Field)
		}
	case t.Operator.needsValue() && t.Value == nil:
		return t, fmt.Errorf("%w: %s on %q needs a value", ErrInvalid, t.Operator, t.Field)
	}
	return t, nil
}

func lookupColumn(table *schema.Table, name string) (string, bool) {
	if f, ok := table.FieldMap[name]; ok {
		return f.Name, true
	}
	for _, f := range table.Fields {
		if strings.EqualFold(f.GoName, name) || strings.EqualFold(f.Name, name) {
			return f.Name, true
		}
	}
	return "", false
}

// Apply adds c to q as one parenthesized group joined with AND to any
// existing conditions. Fields are used as given, so callers normally Bind
// first. Empty criteria leave q unchanged.
func (c *Criteria) Apply(q bun.QueryBuilder) bun.QueryBuilder {
	if c.IsEmpty() {
		return q
	}
	return q.WhereGroup(" AND ", c.applyInner)
}

// Builder returns Apply as a function for ApplyQueryBuilder.
func (c *Criteria) Builder() func(bun.QueryBuilder) bun.QueryBuilder {
	return c.Apply
}

func (c *Criteria) applyInner(q bun.QueryBuilder) bun.QueryBuilder {
	for _, t := range c.Terms {
		expr, args := t.expression()
		if c.Join == JoinOr {
			q = q.WhereOr(expr, args...)
		} else {
			q = q.Where(expr, args...)
		}
	}
	for _, g := range c.Groups {
		if g.IsEmpty() {
			continue
		}
		q = q.WhereGroup(c.Join.separator(), g.applyInner)
	}
	return q
}

// expression renders t as a Bun query fragment with placeholders.
func (t Term) expression() (string, []any) {
	column := bun.Ident(t.Field)
	value := t.Value
	lhs, rhs := "?", "?"
	if t.IgnoreCase {
		// case folding only affects text
		if _, ok := value.(string); ok || t.Operator.isPattern() {
			lhs, rhs = "LOWER(?)", "LOWER(?)"
		}
	}

	switch t.Operator {
	case Equals:
		if value == nil {
			return "? IS NULL", []any{column}
		}
		return lhs + " = " + rhs, []any{column, value}
	case NotEquals:
		if value == nil {
			return "? IS NOT NULL", []any{column}
		}
		return lhs + " <> " + rhs, []any{column, value}
	case Contains:
		return lhs + " LIKE " + rhs + " ESCAPE '!'", []any{column, "%" + escapeLike(value) + "%"}
	case StartsWith:
		return lhs + " LIKE " + rhs + " ESCAPE '!'", []any{column, escapeLike(value) + "%"}
	case EndsWith:
		return lhs + " LIKE " + rhs + " ESCAPE '!'", []any{column, "%" + escapeLike(value)}
	case GreaterThan:
		return lhs + " > " + rhs, []any{column, value}
	case GreaterOrEqual:
		return lhs + " >= " + rhs, []any{column, value}
	case LessThan:
		return lhs + " < " + rhs, []any{column, value}
	case LessOrEqual:
		return lhs + " <= " + rhs, []any{column, value}
	case In:
		if t.IgnoreCase {
			if lowered, ok := lowerStrings(value); ok {
				return "LOWER(?) IN (?)", []any{column, bun.In(lowered)}
			}
		}
		return "? IN (?)", []any{column, bun.In(value)}
	case IsNull:
		return "? IS NULL", []any{column}
	case IsNotNull:
		return "? IS NOT NULL", []any{column}
	}
	// unreachable after Bind
	return "1 = 0", nil
}

// lowerStrings returns the lower-cased elements of a slice whose elements
// are all strings.
func lowerStrings(v any) ([]string, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]string, rv.Len())
	for i := range out {
		e := rv.Index(i)
		if e.Kind() == reflect.Interface {
			e = e.Elem()
		}
		if e.Kind() != reflect.String {
			return nil, false
		}
		out[i] = strings.ToLower(e.String())
	}
	return out, true
}

func escapeLike(v any) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return likeEscaper.Replace(s)
}
