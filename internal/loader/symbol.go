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

package loader

import (
	"debug/elf"
	"fmt"

	"github.com/golang/glog"
)

// readSymbol reads symbol n of the symbol table and its name. A symbol with
// no name of its own is named after the section it describes.
func (e *File) readSymbol(n uint32) (elf.Sym32, string, error) {
	var sym elf.Sym32
	if n >= e.symbolCount {
		return sym, "", fmt.Errorf("symbol %d out of %d", n, e.symbolCount)
	}
	if err := e.r.readAt(int64(e.symbolTable)+int64(n)*symbolSize, &sym); err != nil {
		return sym, "", fmt.Errorf("symbol %d: %w", n, err)
	}
	if sym.Name != 0 {
		name, err := e.r.readString(int64(e.symbolTableStrings) + int64(sym.Name))
		if err != nil {
			return sym, "", fmt.Errorf("symbol %d name: %w", n, err)
		}
		return sym, name, nil
	}
	_, name, err := e.readSection(uint32(sym.Shndx))
	if err != nil {
		return sym, "", fmt.Errorf("symbol %d: %w", n, err)
	}
	return sym, name, nil
}

// sectionOf returns the loaded section whose header index is idx.
func (e *File) sectionOf(idx uint32) *Section {
	for _, n := range e.order {
		if s := e.sections[n]; s.Index == idx {
			return s
		}
	}
	return nil
}

// addressOf returns the run-time address of sym, or InvalidAddress if it
// cannot be determined. Undefined symbols are looked up in the firmware API
// by name; defined symbols are relative to their section's base.
func (e *File) addressOf(sym elf.Sym32, name string) uint32 {
	if elf.SectionIndex(sym.Shndx) == elf.SHN_UNDEF {
		if addr, ok := e.resolver.Resolve(name); ok {
			return addr
		}
	} else if s := e.sectionOf(uint32(sym.Shndx)); s != nil {
		return s.Addr() + sym.Value
	}
	glog.V(2).Infof("can not find address for symbol %s", name)
	return InvalidAddress
}

// resolveSymbol returns the address of symbol n, memoized for the duration of
// the current load. Unresolvable symbols are memoized too, so each one is
// looked up and reported once.
func (e *File) resolveSymbol(n uint32) (resolved, bool, error) {
	if r, ok := e.relocationCache[n]; ok {
		return r, true, nil
	}
	sym, name, err := e.readSymbol(n)
	if err != nil {
		return resolved{}, false, err
	}
	r := resolved{addr: e.addressOf(sym, name), name: name}
	e.relocationCache[n] = r
	return r, false, nil
}
