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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageRequestDefaults(t *testing.T) {
	tests := []struct {
		name   string
		req    *PageRequest
		page   int
		size   int
		offset int
	}{
		{"nil request", nil, 1, 10, 0},
		{"zero values", NewDefaultPageRequest(0, 0), 1, 10, 0},
		{"negative values", NewDefaultPageRequest(-3, -1), 1, 10, 0},
		{"third page", NewDefaultPageRequest(3, 25), 3, 25, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.page, tt.req.GetPage())
			assert.Equal(t, tt.size, tt.req.GetPageSize())
			assert.Equal(t, tt.offset, tt.req.GetOffset())
		})
	}
}

func TestPageRequestAccessors(t *testing.T) {
	filter := NewQueryFilter("name = ?", "a")
	req := NewPageRequest(1, 5, filter, []string{"id DESC"})
	assert.Same(t, filter, req.GetFilter())
	assert.Equal(t, []string{"id DESC"}, req.GetOrders())

	var nilReq *PageRequest
	assert.Nil(t, nilReq.GetFilter())
	assert.Nil(t, nilReq.GetOrders())
	assert.True(t, (*QueryFilter)(nil).IsEmpty())
	assert.False(t, filter.IsEmpty())
}

func TestPaginationTotalPages(t *testing.T) {
	p := NewDefaultPagination[struct{}](1, 10)
	assert.Equal(t, 0, p.TotalPages())
	assert.False(t, p.HasNext())

	p.Total = 21
	assert.Equal(t, 3, p.TotalPages())
	assert.True(t, p.HasNext())

	p.Page = 3
	assert.False(t, p.HasNext())
}

func TestEnumTable(t *testing.T) {
	table := EnumTable{{"first", "the first"}, {"second", "the second"}}
	assert.Equal(t, "second", table.NameOf(1))
	assert.Equal(t, IllegalName, table.NameOf(2))
	assert.Equal(t, IllegalDesc, table.DescOf(-1))
	assert.Equal(t, 0, table.Lookup(" FIRST "))
	assert.Equal(t, IllegalValue, table.Lookup("third"))
	assert.True(t, table.Contains(1))
	assert.False(t, table.Contains(5))
}
