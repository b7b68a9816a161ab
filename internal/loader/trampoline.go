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

	"github.com/golang/glog"
)

const (
	trampolineAlign = 4
	trampolineSize  = len(trampolineCode) + 4
)

// trampolineCode is the little-endian encoding of
//
//	ldr r12, [pc, #2]
//	bx  r12
//
// which is followed in memory by the absolute target address.
var trampolineCode = [...]byte{0xdf, 0xf8, 0x02, 0xc0, 0x60, 0x47}

// trampolineFor returns the address of a trampoline jumping to target,
// creating it the first time target is asked for.
func (e *File) trampolineFor(target uint32) (uint32, error) {
	if b, ok := e.trampolines[target]; ok {
		return b.Addr, nil
	}
	b, err := e.arena.Alloc(uint32(trampolineSize), trampolineAlign)
	if err != nil {
		return 0, err
	}
	copy(b.Data, trampolineCode[:])
	binary.LittleEndian.PutUint32(b.Data[len(trampolineCode):], target)
	e.trampolines[target] = b
	glog.V(2).Infof("trampoline to 0x%08x at 0x%08x", target, b.Addr)
	return b.Addr, nil
}

// TrampolineCount returns the number of distinct trampolines created while
// loading the image.
func (e *File) TrampolineCount() int {
	return len(e.trampolines)
}

// Trampoline returns the address and contents of the trampoline jumping to
// target, if one was created.
func (e *File) Trampoline(target uint32) (uint32, []byte, bool) {
	b, ok := e.trampolines[target]
	if !ok {
		return 0, nil, false
	}
	return b.Addr, b.Data, true
}

