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


package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"no rows", fmt.Errorf("load: %w", sql.ErrNoRows), NoRowsErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a' for key 'name'"}, DuplicateKeyErr},
		{"mysql missing table", &mysql.MySQLError{Number: 1146}, NoTableErr},
		{"mysql not null", &mysql.MySQLError{Number: 1048}, NotNullViolationErr},
		{"mysql foreign key", fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1452}), ForeignKeyViolationErr},
		{"mysql other", &mysql.MySQLError{Number: 1205}, UnknownErr},
		{"pg duplicate", &pq.Error{Code: "23505"}, DuplicateKeyErr},
		{"pg foreign key", &pq.Error{Code: "23503"}, ForeignKeyViolationErr},
		{"pg check", &pq.Error{Code: "23514"}, CheckConstraintViolationErr},
		{"pg cast", &pq.Error{Code: "22P02"}, InvalidTypeCastErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: books.title (2067)"), DuplicateKeyErr},
		{"sqlite no table", errors.New("SQL logic error: no such table: books (1)"), NoTableErr},
		{"sqlite no column", errors.New("no such column: nope"), NoColumnErr},
		{"sqlite not null", errors.New("NOT NULL constraint failed: books.title"), NotNullViolationErr},
		{"plain", errors.New("boom"), UnknownErr},
		{"nil", nil, UnknownErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, Classify(tc.err))
		})
	}
}

func TestIsSqlError(t *testing.T) {
	ok, kind := IsSqlError(&mysql.MySQLError{Number: 1205})
	assert.True(t, ok)
	assert.Equal(t, UnknownErr, kind)

	ok, _ = IsSqlError(errors.New("boom"))
	assert.False(t, ok)

	ok, _ = IsSqlError(nil)
	assert.False(t, ok)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "duplicate_key", DuplicateKeyErr.String())
	assert.Equal(t, "unknown", ErrorKind(99).String())
	assert.Equal(t, "unknown", ErrorKind(-1).String())

	for _, k := range []ErrorKind{DuplicateKeyErr, NotNullViolationErr, ForeignKeyViolationErr, CheckConstraintViolationErr} {
		assert.True(t, k.IsConstraintViolation(), k.String())
	}
	for _, k := range []ErrorKind{UnknownErr, NoRowsErr, NoTableErr, DataTruncatedErr} {
		assert.False(t, k.IsConstraintViolation(), k.String())
	}
}
