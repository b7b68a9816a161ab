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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
)

// callList calls every function pointer stored in s, first to last or last to
// first. All functions are called even if some fail.
func (e *File) callList(s *Section, reverse bool) error {
	if s == nil || s.Size() == 0 {
		return nil
	}
	if e.opts.Caller == nil {
		return fmt.Errorf("%s: no caller configured", s.Name)
	}
	data := s.Data()
	n := len(data) / 4
	var errs []error
	for i := range n {
		if reverse {
			i = n - 1 - i
		}
		addr := binary.LittleEndian.Uint32(data[i*4:])
		if _, err := e.opts.Caller.Call(addr, 0); err != nil {
			errs = append(errs, fmt.Errorf("%s[%d] 0x%08x: %w", s.Name, i, addr, err))
		}
	}
	return errors.Join(errs...)
}

// CallInit runs the preinit array and then the init array, each front to
// back. It must be called exactly once before EntryPoint.
func (e *File) CallInit() error {
	switch {
	case e.closed:
		return ErrClosed
	case !e.loaded:
		return ErrNotLoaded
	case e.initCalled:
		return fmt.Errorf("%w: init already called", ErrInitState)
	}
	e.initCalled = true
	return errors.Join(e.callList(e.preinitArray, false), e.callList(e.initArray, false))
}

// IsInitComplete reports whether CallInit ran and CallFini has not.
func (e *File) IsInitComplete() bool {
	return e.initCalled
}

// EntryPoint returns the absolute address of the image's entry point.
func (e *File) EntryPoint() (uint32, error) {
	switch {
	case e.closed:
		return 0, ErrClosed
	case !e.initCalled:
		return 0, fmt.Errorf("%w: init not called", ErrInitState)
	}
	return e.entry, nil
}

// CallFini runs the fini array back to front.
func (e *File) CallFini() error {
	switch {
	case e.closed:
		return ErrClosed
	case !e.initCalled:
		return fmt.Errorf("%w: init not called", ErrInitState)
	}
	e.initCalled = false
	return e.callList(e.finiArray, true)
}

// DebugInfo describes where the loaded image lives in memory.
func (e *File) DebugInfo() api.DebugInfo {
	d := api.DebugInfo{
		Entry:     e.entry,
		MemoryMap: []api.MemoryMapEntry{},
		DebugLink: e.debugLink,
	}
	if e.manifest != nil {
		d.AppName = e.manifest.AppName()
	}
	for _, s := range e.Sections() {
		if s.block != nil {
			d.MemoryMap = append(d.MemoryMap, api.MemoryMapEntry{Name: s.Name, Address: s.Addr()})
		}
	}
	return d
}
