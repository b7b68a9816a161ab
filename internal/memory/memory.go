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

// Package memory provides the aligned allocator sections and trampolines of a
// loaded application live in.
//
// Addresses are 32-bit target addresses. On the device they are real RAM
// addresses; on a host they belong to a simulated address space.
package memory

import "errors"

// ErrNoFreeMemory is returned when an allocation cannot be satisfied.
var ErrNoFreeMemory = errors.New("no free memory")

// Block is a contiguous allocation in the target address space.
type Block struct {
	// Addr is the target address of the first byte of Data.
	Addr uint32
	// Data is the backing memory. Writes to Data are writes to Addr onwards.
	Data []byte
}

// End returns the address one past the last byte of the block.
func (b *Block) End() uint32 {
	return b.Addr + uint32(len(b.Data))
}

// Contains reports whether the n bytes starting at addr lie inside b.
func (b *Block) Contains(addr uint32, n uint32) bool {
	return addr >= b.Addr && uint64(addr)+uint64(n) <= uint64(b.End())
}

// Allocator hands out zero-filled, aligned blocks of memory.
// Implementations must be safe for concurrent use.
type Allocator interface {
	// Alloc returns a zero-filled block of size bytes whose address is a
	// multiple of align. It returns ErrNoFreeMemory when exhausted.
	Alloc(size, align uint32) (*Block, error)
	// Free returns b to the allocator.
	Free(b *Block)
}
