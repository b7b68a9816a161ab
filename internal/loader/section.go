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
	"fmt"

	"github.com/golang/glog"
)

// LoadSections allocates memory for every loadable section, copies the
// section contents in, relocates them and fixes up the entry point.
//
// On failure every byte allocated for the image is released again. A
// *MissingImportsError lists all relocations that could not be applied.
func (e *File) LoadSections() (err error) {
	switch {
	case e.closed:
		return ErrClosed
	case e.loaded:
		return fmt.Errorf("sections already loaded")
	}
	defer func() {
		if err != nil {
			e.release()
		}
	}()

	for _, n := range e.order {
		if err := e.loadSection(e.sections[n]); err != nil {
			return fmt.Errorf("section %s: %w", n, err)
		}
	}

	// Relocation reads the final base address of other sections, so only
	// starts once all of them are in memory.
	e.relocationCache = make(map[uint32]resolved)
	missing := &MissingImportsError{}
	for _, n := range e.order {
		if err := e.relocateSection(e.sections[n], missing); err != nil {
			return err
		}
	}

	var total uint32
	for _, s := range e.sections {
		total += s.Size()
	}
	glog.V(1).Infof("relocation cache size: %d", len(e.relocationCache))
	glog.V(1).Infof("trampoline cache size: %d", len(e.trampolines))
	glog.Infof("total size of loaded sections: %d", total)
	e.relocationCache = nil

	if !missing.empty() {
		return missing
	}

	text, ok := e.sections[textName]
	if !ok || text.block == nil {
		return ErrNoText
	}
	e.entry += text.Addr()
	e.loaded = true
	glog.V(1).Infof("entry point 0x%08x", e.entry)
	return nil
}

// loadSection allocates s and fills it from the file. Sections occupying no
// file space rely on the allocator's zero fill and are not read.
func (e *File) loadSection(s *Section) error {
	h := s.hdr
	if h.Size == 0 {
		glog.V(1).Infof("%s: no data", s.Name)
		return nil
	}
	align := h.Addralign
	if align == 0 {
		align = 1
	}
	b, err := e.arena.Alloc(h.Size, align)
	if err != nil {
		return err
	}
	s.block = b
	glog.V(1).Infof("%s: %d bytes at 0x%08x", s.Name, h.Size, b.Addr)
	if s.Kind == KindBSS {
		return nil
	}
	if err := e.r.seek(int64(h.Off)); err != nil {
		return err
	}
	return e.r.readFull(b.Data)
}
