// Copyright 2024 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package resolver provides implementations of api.Resolver, the capability
// which maps the name of a firmware API symbol to its address.
package resolver

import (
	"fmt"
	"slices"
	"strings"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
)

// Symbol is an exported firmware API entry point or variable.
type Symbol struct {
	Name    string
	Address uint32
}

// Hash returns the GNU ELF hash of name, the key the firmware's symbol table
// is sorted by.
func Hash(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h<<5 + h + uint32(name[i])
	}
	return h
}

type entry struct {
	hash uint32
	Symbol
}

// HashTable is an immutable symbol table sorted by name hash.
type HashTable struct {
	version api.APIVersion
	entries []entry
}

// NewHashTable builds a table over syms. Duplicate names are an error.
func NewHashTable(v api.APIVersion, syms []Symbol) (*HashTable, error) {
	t := &HashTable{version: v, entries: make([]entry, 0, len(syms))}
	for _, s := range syms {
		t.entries = append(t.entries, entry{hash: Hash(s.Name), Symbol: s})
	}
	slices.SortFunc(t.entries, func(a, b entry) int {
		if a.hash != b.hash {
			if a.hash < b.hash {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	for i := 1; i < len(t.entries); i++ {
		if t.entries[i].Name == t.entries[i-1].Name {
			return nil, fmt.Errorf("duplicate symbol %q", t.entries[i].Name)
		}
	}
	return t, nil
}

// Resolve implements api.Resolver.
func (t *HashTable) Resolve(name string) (uint32, bool) {
	h := Hash(name)
	i, _ := slices.BinarySearchFunc(t.entries, h, func(e entry, h uint32) int {
		switch {
		case e.hash < h:
			return -1
		case e.hash > h:
			return 1
		}
		return 0
	})
	for ; i < len(t.entries) && t.entries[i].hash == h; i++ {
		if t.entries[i].Name == name {
			return t.entries[i].Address, true
		}
	}
	return 0, false
}

// Version implements api.Resolver.
func (t *HashTable) Version() api.APIVersion {
	return t.version
}

// Len returns the number of symbols in the table.
func (t *HashTable) Len() int {
	return len(t.entries)
}

// Symbols returns the symbols of the table in hash order.
func (t *HashTable) Symbols() []Symbol {
	r := make([]Symbol, len(t.entries))
	for i, e := range t.entries {
		r[i] = e.Symbol
	}
	return r
}
