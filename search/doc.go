// Package search composes dynamic predicates for Bun queries. A Criteria is
// a tree of column terms joined with AND or OR; it can be built in code,
// decoded from YAML or JSON, bound to a model's table and applied to any
// bun.QueryBuilder.
package search
