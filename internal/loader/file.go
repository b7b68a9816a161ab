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

// Package loader maps a relocatable ARM Thumb2 ELF object into memory,
// resolves its imports against the firmware API and makes it callable.
//
// Loading is split into phases which must run in order:
//
//	Open -> LoadSectionTable -> (manifest gate by the caller) -> LoadSections
//
// after which CallInit, EntryPoint and CallFini drive the application's
// lifecycle, and Close releases everything.
package loader

import (
	"debug/elf"
	"fmt"

	"github.com/golang/glog"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/memory"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/storage"
)

const (
	// InvalidAddress is what unresolvable symbols resolve to.
	InvalidAddress uint32 = 0xFFFFFFFF

	// DefaultYieldStep is how many relocation entries are processed
	// between two yields.
	DefaultYieldStep = 30

	headerSize  = 52
	sectionSize = 40
	symbolSize  = 16
	relSize     = 8
)

// Caller invokes code at a target address.
type Caller interface {
	// Call runs the function at addr with one argument and returns its
	// result.
	Call(addr uint32, arg uint32) (int32, error)
}

// Options configures how an image is loaded.
type Options struct {
	// Allocator provides memory for sections and trampolines. Required.
	Allocator memory.Allocator
	// Caller runs init/fini functions. Required for CallInit/CallFini.
	Caller Caller
	// Yield, if set, is called every YieldStep relocation entries so that a
	// long relocation pass does not starve other threads.
	Yield func()
	// YieldStep defaults to DefaultYieldStep.
	YieldStep int
}

// Kind classifies a loadable section.
type Kind int

const (
	KindCode Kind = iota
	KindROData
	KindData
	KindBSS
	KindPreinitArray
	KindInitArray
	KindFiniArray
)

func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindROData:
		return "rodata"
	case KindData:
		return "data"
	case KindBSS:
		return "bss"
	case KindPreinitArray:
		return "preinit_array"
	case KindInitArray:
		return "init_array"
	case KindFiniArray:
		return "fini_array"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Section is one named region of the image resident in memory.
type Section struct {
	Name string
	Kind Kind
	// Index is the section header index in the file, 0 if the image has no
	// loadable section of this name.
	Index uint32
	// RelIndex is the section header index of the companion relocation
	// section, 0 if there is none.
	RelIndex uint32

	hdr       elf.Section32
	relOffset uint32
	relCount  uint32

	block *memory.Block
}

// Addr returns the base address of the section, 0 if it holds no memory.
func (s *Section) Addr() uint32 {
	if s.block == nil {
		return 0
	}
	return s.block.Addr
}

// Data returns the in-memory contents of the section, nil if it holds no
// memory.
func (s *Section) Data() []byte {
	if s.block == nil {
		return nil
	}
	return s.block.Data
}

// Size returns the number of bytes of memory the section occupies.
func (s *Section) Size() uint32 {
	return uint32(len(s.Data()))
}

// File is an application image being loaded. It exclusively owns the open
// file handle and every byte of memory allocated for the image.
type File struct {
	r        *reader
	file     storage.File
	resolver api.Resolver
	opts     Options
	arena    *memory.Arena

	entry               uint32
	sectionCount        uint32
	sectionTable        uint32
	sectionTableStrings uint32
	symbolTable         uint32
	symbolCount         uint32
	symbolTableStrings  uint32

	sections map[string]*Section
	// order is the order sections were first seen in the section table.
	order []string

	preinitArray *Section
	initArray    *Section
	finiArray    *Section

	manifest  *api.Manifest
	debugLink []byte

	relocationCache map[uint32]resolved
	trampolines     map[uint32]*memory.Block

	loaded     bool
	initCalled bool
	closed     bool
}

// resolved is a relocation cache entry.
type resolved struct {
	addr uint32
	name string
}

// Open reads and validates the ELF header of f. The returned File owns f and
// closes it in Close, also when Open fails.
func Open(f storage.File, resolver api.Resolver, opts Options) (*File, error) {
	if opts.YieldStep <= 0 {
		opts.YieldStep = DefaultYieldStep
	}
	e := &File{
		r:           &reader{f: f},
		file:        f,
		resolver:    resolver,
		opts:        opts,
		arena:       memory.NewArena(opts.Allocator),
		sections:    make(map[string]*Section),
		trampolines: make(map[uint32]*memory.Block),
	}
	if err := e.readHeader(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *File) readHeader() error {
	var h elf.Header32
	if err := e.r.measure(); err != nil {
		return invalidFile("%v", err)
	}
	if err := e.r.seek(0); err != nil {
		return invalidFile("%v", err)
	}
	if err := e.r.read(&h); err != nil {
		return invalidFile("header: %v", err)
	}
	switch {
	case string(h.Ident[:elf.EI_CLASS]) != elf.ELFMAG:
		return invalidFile("bad magic %q", h.Ident[:elf.EI_CLASS])
	case elf.Class(h.Ident[elf.EI_CLASS]) != elf.ELFCLASS32:
		return invalidFile("class %v, want %v", elf.Class(h.Ident[elf.EI_CLASS]), elf.ELFCLASS32)
	case elf.Data(h.Ident[elf.EI_DATA]) != elf.ELFDATA2LSB:
		return invalidFile("encoding %v, want %v", elf.Data(h.Ident[elf.EI_DATA]), elf.ELFDATA2LSB)
	case elf.Machine(h.Machine) != elf.EM_ARM:
		return invalidFile("machine %v, want %v", elf.Machine(h.Machine), elf.EM_ARM)
	case h.Shentsize != 0 && h.Shentsize != sectionSize:
		return invalidFile("section header size %d", h.Shentsize)
	case h.Shstrndx >= h.Shnum:
		return invalidFile("section name table index %d out of %d", h.Shstrndx, h.Shnum)
	}

	var strtab elf.Section32
	if err := e.r.readAt(int64(h.Shoff)+int64(h.Shstrndx)*sectionSize, &strtab); err != nil {
		return invalidFile("section name table header: %v", err)
	}

	e.entry = h.Entry
	e.sectionCount = uint32(h.Shnum)
	e.sectionTable = h.Shoff
	e.sectionTableStrings = strtab.Off
	return nil
}

// Manifest returns the manifest found by LoadSectionTable, if any.
func (e *File) Manifest() (api.Manifest, bool) {
	if e.manifest == nil {
		return api.Manifest{}, false
	}
	return *e.manifest, true
}

// Section returns the section with the given name.
func (e *File) Section(name string) (*Section, bool) {
	s, ok := e.sections[name]
	return s, ok
}

// Sections returns the known sections in section table order.
func (e *File) Sections() []*Section {
	r := make([]*Section, 0, len(e.order))
	for _, n := range e.order {
		r = append(r, e.sections[n])
	}
	return r
}

// Resolver returns the API resolver the image is linked against.
func (e *File) Resolver() api.Resolver {
	return e.resolver
}

// release frees every block of memory owned by the image and forgets the
// per-load state. It is safe to call repeatedly.
func (e *File) release() {
	e.arena.Release()
	for _, s := range e.sections {
		s.block = nil
	}
	clear(e.trampolines)
	e.relocationCache = nil
	e.loaded = false
}

// Close tears the image down: runs pending finalizers, frees all memory and
// closes the file. It may be called any number of times, after any outcome.
func (e *File) Close() error {
	if e.closed {
		return nil
	}
	if e.initCalled {
		glog.Warning("init array was called, but fini array wasn't")
		if err := e.CallFini(); err != nil {
			glog.Errorf("fini array: %v", err)
		}
	}
	e.closed = true
	e.release()
	e.debugLink = nil
	return e.file.Close()
}
