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

import "sync"

// Arena tracks every block allocated on behalf of one owner so that they can
// all be released together.
type Arena struct {
	alloc Allocator

	mu     sync.Mutex
	blocks []*Block
}

// NewArena returns an empty arena allocating from a.
func NewArena(a Allocator) *Arena {
	return &Arena{alloc: a}
}

// Alloc allocates a block from the underlying allocator and records it.
func (a *Arena) Alloc(size, align uint32) (*Block, error) {
	b, err := a.alloc.Alloc(size, align)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.blocks = append(a.blocks, b)
	a.mu.Unlock()
	return b, nil
}

// Len returns the number of blocks currently held.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.blocks)
}

// Release frees every block held by the arena. Calling it again is a no-op.
func (a *Arena) Release() {
	a.mu.Lock()
	blocks := a.blocks
	a.blocks = nil
	a.mu.Unlock()

	for _, b := range blocks {
		a.alloc.Free(b)
	}
}
