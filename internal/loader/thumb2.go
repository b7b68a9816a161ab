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
)

// Range limits of the Thumb2 BL/B.W branch offset.
const (
	branchMax = 0x1000000
	branchMin = -0x1000000
)

// DecodeBranch returns the signed byte offset of a Thumb2 BL/BLX/B.W
// instruction from its two halfwords:
//
//	hi: 11110 S imm10
//	lo: 1 1 J1 x J2 imm11
//
//	I1 = NOT(J1 XOR S), I2 = NOT(J2 XOR S)
//	offset = SignExtend(S:I1:I2:imm10:imm11:0)
func DecodeBranch(hi, lo uint16) int32 {
	s := int32(hi>>10) & 1
	j1 := int32(lo>>13) & 1
	j2 := int32(lo>>11) & 1
	i1 := (j1 ^ s) ^ 1
	i2 := (j2 ^ s) ^ 1
	imm10 := int32(hi) & 0x3ff
	imm11 := int32(lo) & 0x7ff
	offset := s<<24 | i1<<23 | i2<<22 | imm10<<12 | imm11<<1
	if offset&0x01000000 != 0 {
		offset -= 0x02000000
	}
	return offset
}

// EncodeBranch writes offset back into the halfwords of a Thumb2 branch,
// keeping the opcode bits of hi and lo. If blx is set, bit 12 of lo is
// cleared, turning a BL into a BLX.
func EncodeBranch(hi, lo uint16, offset int32, blx bool) (uint16, uint16) {
	s := (offset >> 24) & 1
	i1 := (offset >> 23) & 1
	i2 := (offset >> 22) & 1
	j1 := s ^ (i1 ^ 1)
	j2 := s ^ (i2 ^ 1)
	imm10 := (offset >> 12) & 0x3ff
	imm11 := (offset >> 1) & 0x7ff
	blxBit := int32(1 << 12)
	if blx {
		blxBit = 0
	}
	hi = uint16(int32(hi&0xf800) | s<<10 | imm10)
	lo = uint16(int32(lo&0xc000) | j1<<13 | blxBit | j2<<11 | imm11)
	return hi, lo
}

// TrampolineFunc returns the address of a trampoline jumping to target.
type TrampolineFunc func(target uint32) (uint32, error)

// RelocateBranch patches the Thumb2 branch at site to reach symAddr.
//
// A call to an ARM (even) target becomes a BLX, with the offset computed from
// the word aligned PC. When the target is out of the encodable range, or
// cannot be entered directly in ARM mode, the branch is pointed at a
// trampoline obtained from tramp instead.
func RelocateBranch(hi, lo uint16, typ elf.R_ARM, site, symAddr uint32, tramp TrampolineFunc) (uint16, uint16, error) {
	addend := DecodeBranch(hi, lo)
	toThumb := symAddr&1 != 0
	isCall := typ == elf.R_ARM_THM_PC22
	blx := false

	offset := addend + int32(symAddr-site)
	if !toThumb && isCall {
		blx = true
		offset = (offset + 3) &^ 3
	}

	if !toThumb || offset >= branchMax || offset < branchMin {
		if toThumb || symAddr&2 != 0 || !isCall {
			t, err := tramp(symAddr)
			if err != nil {
				return hi, lo, fmt.Errorf("trampoline to 0x%08x: %w", symAddr, err)
			}
			offset = addend + int32(t-site)
			if !toThumb && isCall {
				blx = true
				offset = (offset + 3) &^ 3
			}
		}
	}

	hi, lo = EncodeBranch(hi, lo, offset, blx)
	return hi, lo, nil
}

// DecodeMovImm16 returns the immediate of a Thumb2 MOVW/MOVT instruction:
//
//	upper: 11110 i 10x1x0 imm4
//	lower: 0 imm3 Rd imm8
//
//	imm16 = imm4:i:imm3:imm8
func DecodeMovImm16(upper, lower uint16) uint16 {
	i := (upper >> 10) & 1
	imm4 := upper & 0x000f
	imm3 := (lower >> 12) & 0x7
	imm8 := lower & 0x00ff
	return imm4<<12 | i<<11 | imm3<<8 | imm8
}

// EncodeMovImm16 writes imm into the scattered immediate fields of a
// MOVW/MOVT instruction, keeping its other bits.
func EncodeMovImm16(upper, lower uint16, imm uint16) (uint16, uint16) {
	upper = upper&0xfbf0 | ((imm>>11)&1)<<10 | (imm>>12)&0x000f
	lower = lower&0x8f00 | ((imm>>8)&0x7)<<12 | imm&0x00ff
	return upper, lower
}

// RelocateMov patches a MOVW (lower half) or MOVT (upper half) instruction
// to load symAddr plus the immediate already encoded in it.
func RelocateMov(upper, lower uint16, typ elf.R_ARM, symAddr uint32) (uint16, uint16) {
	addr := symAddr + uint32(DecodeMovImm16(upper, lower))
	if typ == elf.R_ARM_THM_MOVT_ABS {
		addr >>= 16
	} else {
		addr &= 0xffff
	}
	return EncodeMovImm16(upper, lower, uint16(addr))
}
