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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidFile is returned when the image is not a loadable ELF
	// object or one of its tables cannot be read.
	ErrInvalidFile = errors.New("invalid ELF file")
	// ErrNoText is returned when the image has no .text section to anchor
	// its entry point.
	ErrNoText = errors.New("no .text section")
	// ErrNotLoaded is returned by operations which need mapped sections.
	ErrNotLoaded = errors.New("image is not loaded")
	// ErrInitState is returned when init/fini lists are run out of order.
	ErrInitState = errors.New("init/fini called out of order")
	// ErrClosed is returned by operations on a closed image.
	ErrClosed = errors.New("image is closed")
	// ErrUnresolvedSymbol marks a relocation whose symbol has no address.
	ErrUnresolvedSymbol = errors.New("unresolved symbol")

	errUnknownRelocation = errors.New("unsupported relocation type")
	errOutOfSection      = errors.New("relocation site outside section")
)

func invalidFile(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFile, fmt.Sprintf(format, a...))
}

// RelocationError describes a single relocation entry which could not be
// applied.
type RelocationError struct {
	Section string
	Offset  uint32
	Type    elf.R_ARM
	Symbol  string
	Err     error
}

func (e RelocationError) Error() string {
	return fmt.Sprintf("%s+0x%x %v %q: %v", e.Section, e.Offset, e.Type, e.Symbol, e.Err)
}

func (e RelocationError) Unwrap() error {
	return e.Err
}

// MissingImportsError lists every relocation of a load which could not be
// applied, and the distinct symbols which could not be resolved.
type MissingImportsError struct {
	Symbols     []string
	Relocations []RelocationError
}

func (e *MissingImportsError) add(re RelocationError, unresolved bool) {
	e.Relocations = append(e.Relocations, re)
	if unresolved {
		e.Symbols = append(e.Symbols, re.Symbol)
	}
}

func (e *MissingImportsError) empty() bool {
	return len(e.Relocations) == 0
}

func (e *MissingImportsError) Error() string {
	if len(e.Symbols) > 0 {
		return fmt.Sprintf("missing imports: %s (%d failed relocations)", strings.Join(e.Symbols, ", "), len(e.Relocations))
	}
	return fmt.Sprintf("%d failed relocations, first: %v", len(e.Relocations), e.Relocations[0])
}
