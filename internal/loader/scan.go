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
	"io"
	"strings"

	"github.com/golang/glog"

	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/manifest"
)

const (
	symtabName    = ".symtab"
	strtabName    = ".strtab"
	debugLinkName = ".gnu_debuglink"
	textName      = ".text"
	relPrefix     = ".rel"
	relaPrefix    = ".rela"
)

// ProcessResult is the outcome of ProcessSection.
type ProcessResult int

const (
	ProcessNotFound ProcessResult = iota
	ProcessCannotProcess
	ProcessSuccess
)

func (r ProcessResult) String() string {
	switch r {
	case ProcessNotFound:
		return "not found"
	case ProcessCannotProcess:
		return "cannot process"
	case ProcessSuccess:
		return "success"
	}
	return fmt.Sprintf("ProcessResult(%d)", int(r))
}

// ProcessFunc consumes the body of a section, given as a reader limited to
// the section's bytes in the file.
type ProcessFunc func(r io.Reader, size uint32) error

// readSection reads the header and name of the section at index idx.
func (e *File) readSection(idx uint32) (elf.Section32, string, error) {
	var h elf.Section32
	if err := e.r.readAt(int64(e.sectionTable)+int64(idx)*sectionSize, &h); err != nil {
		return h, "", fmt.Errorf("section %d header: %w", idx, err)
	}
	name, err := e.r.readString(int64(e.sectionTableStrings) + int64(h.Name))
	if err != nil {
		return h, "", fmt.Errorf("section %d name: %w", idx, err)
	}
	return h, name, nil
}

// readBody reads the file contents of a section. Bodies reaching past the end
// of the file are rejected before anything is allocated.
func (e *File) readBody(h elf.Section32) ([]byte, error) {
	if !e.r.contains(h.Off, h.Size) {
		return nil, fmt.Errorf("body of %d bytes at 0x%x: %w", h.Size, h.Off, io.ErrUnexpectedEOF)
	}
	b := make([]byte, h.Size)
	if err := e.r.seek(int64(h.Off)); err != nil {
		return nil, err
	}
	if err := e.r.readFull(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (e *File) section(name string) *Section {
	s, ok := e.sections[name]
	if !ok {
		s = &Section{Name: name}
		e.sections[name] = s
		e.order = append(e.order, name)
	}
	return s
}

// LoadSectionTable scans the section table once, classifying every section
// and reading the manifest and debug link if present. No memory is committed
// for the image's code or data.
func (e *File) LoadSectionTable() error {
	if e.closed {
		return ErrClosed
	}
	var haveSymtab, haveStrtab bool
	for idx := uint32(1); idx < e.sectionCount; idx++ {
		h, name, err := e.readSection(idx)
		if err != nil {
			return invalidFile("%v", err)
		}
		glog.V(2).Infof("section #%d %s: type %v, flags %v, size %d", idx, name, elf.SectionType(h.Type), elf.SectionFlag(h.Flags), h.Size)

		switch {
		case strings.HasPrefix(name, ".ARM.") || strings.HasPrefix(name, ".rel.ARM."):
			glog.V(2).Infof("ignoring ARM section %s", name)

		case elf.SectionFlag(h.Flags)&elf.SHF_ALLOC != 0:
			if err := e.addAlloc(idx, name, h); err != nil {
				return err
			}

		case elf.SectionType(h.Type) == elf.SHT_RELA:
			return invalidFile("section %s: RELA relocations are not supported", name)

		case elf.SectionType(h.Type) == elf.SHT_REL:
			if !strings.HasPrefix(name, relPrefix) {
				return invalidFile("relocation section %s has no %s prefix", name, relPrefix)
			}
			s := e.section(strings.TrimPrefix(name, relPrefix))
			s.RelIndex = idx
			s.relOffset = h.Off
			s.relCount = h.Size / relSize

		case name == symtabName:
			e.symbolTable = h.Off
			e.symbolCount = h.Size / symbolSize
			haveSymtab = true

		case name == strtabName:
			e.symbolTableStrings = h.Off
			haveStrtab = true

		case name == debugLinkName:
			b, err := e.readBody(h)
			if err != nil {
				return invalidFile("%s: %v", name, err)
			}
			e.debugLink = b

		case name == manifest.SectionName:
			b, err := e.readBody(h)
			if err != nil {
				return invalidFile("%s: %v", name, err)
			}
			m, err := manifest.Decode(b)
			if err != nil {
				return invalidFile("%v", err)
			}
			e.manifest = &m
		}
	}

	if !haveSymtab || !haveStrtab {
		return invalidFile("missing %s or %s", symtabName, strtabName)
	}

	// Relocations against sections which are not loaded (debug info, notes)
	// have nothing to patch.
	order := e.order[:0]
	for _, n := range e.order {
		if e.sections[n].Index == 0 {
			glog.V(1).Infof("skipping relocations for non-loadable section %s", n)
			delete(e.sections, n)
			continue
		}
		order = append(order, n)
	}
	e.order = order
	glog.V(1).Infof("scanned %d sections, %d loadable, %d symbols", e.sectionCount, len(e.order), e.symbolCount)
	return nil
}

func (e *File) addAlloc(idx uint32, name string, h elf.Section32) error {
	s := e.section(name)
	if s.Index != 0 {
		return invalidFile("duplicate section %s", name)
	}
	s.Index = idx
	s.hdr = h

	flags := elf.SectionFlag(h.Flags)
	switch typ := elf.SectionType(h.Type); {
	case typ == elf.SHT_PREINIT_ARRAY:
		s.Kind = KindPreinitArray
		return setOnce(&e.preinitArray, s)
	case typ == elf.SHT_INIT_ARRAY:
		s.Kind = KindInitArray
		return setOnce(&e.initArray, s)
	case typ == elf.SHT_FINI_ARRAY:
		s.Kind = KindFiniArray
		return setOnce(&e.finiArray, s)
	case typ == elf.SHT_NOBITS:
		s.Kind = KindBSS
	case flags&elf.SHF_EXECINSTR != 0:
		s.Kind = KindCode
	case flags&elf.SHF_WRITE != 0:
		s.Kind = KindData
	default:
		s.Kind = KindROData
	}
	return nil
}

func setOnce(dst **Section, s *Section) error {
	if *dst != nil {
		return invalidFile("both %s and %s are %v sections", (*dst).Name, s.Name, s.Kind)
	}
	*dst = s
	return nil
}

// ProcessSection finds the section called name and hands its body to fn.
// It returns ProcessNotFound if there is no such section, and
// ProcessCannotProcess if the section could not be read or fn failed.
func (e *File) ProcessSection(name string, fn ProcessFunc) ProcessResult {
	if e.closed {
		return ProcessNotFound
	}
	for idx := uint32(1); idx < e.sectionCount; idx++ {
		h, n, err := e.readSection(idx)
		if err != nil {
			glog.Errorf("ProcessSection(%q): %v", name, err)
			return ProcessNotFound
		}
		if n != name {
			continue
		}
		if err := e.r.seek(int64(h.Off)); err != nil {
			glog.Errorf("ProcessSection(%q): %v", name, err)
			return ProcessCannotProcess
		}
		if err := fn(io.LimitReader(e.r.f, int64(h.Size)), h.Size); err != nil {
			glog.Errorf("ProcessSection(%q): %v", name, err)
			return ProcessCannotProcess
		}
		return ProcessSuccess
	}
	return ProcessNotFound
}
