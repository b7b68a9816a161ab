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

//go:build tamago
// +build tamago

package memory

import (
	"fmt"

	"github.com/usbarmory/tamago/dma"
)

// DMA is an Allocator backed by a tamago DMA region, used when the loader
// runs on the device itself.
type DMA struct {
	r *dma.Region
}

// NewDMA returns an Allocator reserving memory from a new DMA region
// covering size bytes at addr.
func NewDMA(addr uint, size int) (*DMA, error) {
	r, err := dma.NewRegion(addr, size, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create DMA region at 0x%x: %w", addr, err)
	}
	return &DMA{r: r}, nil
}

// Alloc implements Allocator.
func (d *DMA) Alloc(size, align uint32) (*Block, error) {
	if size == 0 {
		size = 1
	}
	if align == 0 {
		align = 1
	}
	addr, buf := d.r.Reserve(int(size), int(align))
	if addr == 0 || buf == nil {
		return nil, fmt.Errorf("reserve of %d bytes aligned to %d: %w", size, align, ErrNoFreeMemory)
	}
	clear(buf)
	return &Block{Addr: uint32(addr), Data: buf}, nil
}

// Free implements Allocator.
func (d *DMA) Free(b *Block) {
	if b == nil {
		return
	}
	d.r.Release(uint(b.Addr))
}
