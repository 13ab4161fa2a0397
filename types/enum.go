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

import "strings"

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by search operators,
// join kinds and entity states.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// EnumEntry is one row of an enum lookup table.
type EnumEntry struct {
	Name string
	Desc string
}

// EnumTable maps enum numbers to their names and descriptions.
type EnumTable []EnumEntry

// NameOf returns the registered name for n, or IllegalName.
func (t EnumTable) NameOf(n int) string {
	if n < 0 || n >= len(t) {
		return IllegalName
	}
	return t[n].Name
}

// DescOf returns the registered description for n, or IllegalDesc.
func (t EnumTable) DescOf(n int) string {
	if n < 0 || n >= len(t) {
		return IllegalDesc
	}
	return t[n].Desc
}

// Contains reports whether n is a registered enum number.
func (t EnumTable) Contains(n int) bool {
	return n >= 0 && n < len(t)
}

// Lookup finds an enum number by name, ignoring case and surrounding spaces.
func (t EnumTable) Lookup(name string) int {
	name = strings.TrimSpace(name)
	for i, e := range t {
		if strings.EqualFold(e.Name, name) {
			return i
		}
	}
	return IllegalValue
}
