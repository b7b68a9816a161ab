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

package memory

import (
	"fmt"
	"slices"
	"sync"
)

// Region is an Allocator over a simulated range of target RAM. Blocks are
// placed first-fit in address order.
type Region struct {
	base uint32
	size uint32

	mu      sync.Mutex
	entries []*Block
}

// NewRegion returns a Region covering size bytes starting at base.
func NewRegion(base, size uint32) (*Region, error) {
	if uint64(base)+uint64(size) > 1<<32 {
		return nil, fmt.Errorf("region 0x%08x+0x%x exceeds the 32-bit address space", base, size)
	}
	return &Region{base: base, size: size}, nil
}

// Base returns the first address of the region.
func (r *Region) Base() uint32 {
	return r.base
}

// Used returns the number of bytes currently allocated.
func (r *Region) Used() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n uint32
	for _, e := range r.entries {
		n += uint32(len(e.Data))
	}
	return n
}

// Blocks returns the number of live allocations.
func (r *Region) Blocks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func alignUp(v, align uint64) uint64 {
	if align > 1 {
		v += align - 1
		v -= v % align
	}
	return v
}

// Alloc implements Allocator.
func (r *Region) Alloc(size, align uint32) (*Block, error) {
	if align == 0 {
		align = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	end := uint64(r.base) + uint64(r.size)
	gapStart := uint64(r.base)
	for i := 0; i <= len(r.entries); i++ {
		gapEnd := end
		if i < len(r.entries) {
			gapEnd = uint64(r.entries[i].Addr)
		}
		offset := alignUp(gapStart, uint64(align))
		// Zero-size blocks still need a distinct address.
		need := uint64(size)
		if need == 0 {
			need = 1
		}
		if offset+need <= gapEnd {
			b := &Block{Addr: uint32(offset), Data: make([]byte, size)}
			r.entries = slices.Insert(r.entries, i, b)
			return b, nil
		}
		if i < len(r.entries) {
			gapStart = uint64(r.entries[i].Addr) + max(uint64(len(r.entries[i].Data)), 1)
		}
	}
	return nil, fmt.Errorf("alloc of %d bytes aligned to %d: %w", size, align, ErrNoFreeMemory)
}

// Free implements Allocator. Freeing a block which is not live is a no-op.
func (r *Region) Free(b *Block) {
	if b == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = slices.DeleteFunc(r.entries, func(e *Block) bool { return e == b })
}
