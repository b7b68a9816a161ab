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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/memory"
)

// relocateSection applies every relocation entry of s. Entries which cannot
// be applied are recorded in missing and processing carries on; the returned
// error is reserved for failures which abort the load.
func (e *File) relocateSection(s *Section, missing *MissingImportsError) error {
	if s.relCount == 0 {
		glog.V(1).Infof("%s: no relocations", s.Name)
		return nil
	}
	if s.block == nil {
		glog.Errorf("%s: %d relocations against a section with no data", s.Name, s.relCount)
		missing.add(RelocationError{Section: s.Name, Err: ErrNotLoaded}, false)
		return nil
	}
	glog.V(1).Infof("%s: applying %d relocations", s.Name, s.relCount)

	if err := e.r.seek(int64(s.relOffset)); err != nil {
		return fmt.Errorf("%s relocations: %w", s.Name, err)
	}
	for i := uint32(0); i < s.relCount; i++ {
		if i%uint32(e.opts.YieldStep) == 0 && e.opts.Yield != nil {
			e.opts.Yield()
		}

		var rel elf.Rel32
		if err := e.r.read(&rel); err != nil {
			return fmt.Errorf("%s relocation %d: %w", s.Name, i, err)
		}
		symIdx := elf.R_SYM32(rel.Info)
		typ := elf.R_ARM(elf.R_TYPE32(rel.Info))

		sym, cached, err := e.resolveSymbol(symIdx)
		if err != nil {
			return fmt.Errorf("%s relocation %d: %w", s.Name, i, err)
		}
		re := RelocationError{Section: s.Name, Offset: rel.Off, Type: typ, Symbol: sym.name}
		glog.V(2).Infof(" %08x %08x %-22v %s -> 0x%08x", rel.Off, rel.Info, typ, sym.name, sym.addr)

		if sym.addr == InvalidAddress {
			if !cached {
				glog.Errorf("no address for symbol %s", sym.name)
			}
			re.Err = ErrUnresolvedSymbol
			missing.add(re, !cached)
			continue
		}
		if err := e.apply(s, rel.Off, typ, sym.addr); err != nil {
			if errors.Is(err, memory.ErrNoFreeMemory) {
				return err
			}
			glog.Errorf("%s: %v", s.Name, err)
			re.Err = err
			missing.add(re, false)
		}
	}
	return nil
}

// apply patches the word at offset off of s to refer to symAddr.
func (e *File) apply(s *Section, off uint32, typ elf.R_ARM, symAddr uint32) error {
	data := s.Data()
	if uint64(off)+4 > uint64(len(data)) {
		return fmt.Errorf("%v at 0x%x: %w", typ, off, errOutOfSection)
	}
	site := s.Addr() + off
	w := data[off : off+4]

	switch typ {
	case elf.R_ARM_ABS32, elf.R_ARM_TARGET1:
		binary.LittleEndian.PutUint32(w, binary.LittleEndian.Uint32(w)+symAddr)

	case elf.R_ARM_THM_PC22, elf.R_ARM_CALL, elf.R_ARM_THM_JUMP24:
		hi, lo, err := RelocateBranch(
			binary.LittleEndian.Uint16(w[0:]), binary.LittleEndian.Uint16(w[2:]),
			typ, site, symAddr, e.trampolineFor)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint16(w[0:], hi)
		binary.LittleEndian.PutUint16(w[2:], lo)

	case elf.R_ARM_THM_MOVW_ABS_NC, elf.R_ARM_THM_MOVT_ABS:
		upper, lower := RelocateMov(
			binary.LittleEndian.Uint16(w[0:]), binary.LittleEndian.Uint16(w[2:]),
			typ, symAddr)
		binary.LittleEndian.PutUint16(w[0:], upper)
		binary.LittleEndian.PutUint16(w[2:], lower)

	default:
		return fmt.Errorf("%v at 0x%x: %w", typ, off, errUnknownRelocation)
	}
	glog.V(2).Infof("  %v relocated is 0x%08x", typ, binary.LittleEndian.Uint32(w))
	return nil
}
