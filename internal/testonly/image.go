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

// Package testonly provides support for tests which need application images.
package testonly

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/manifest"
)

type section struct {
	name  string
	typ   elf.SectionType
	flags elf.SectionFlag
	data  []byte
	size  uint32
	align uint32
	rels  []elf.Rel32
}

// Image assembles a minimal relocatable ARM ELF object.
// Section indices and symbol indices returned by its methods are the ones
// the built file uses.
type Image struct {
	Entry uint32

	sections []*section
	symbols  []elf.Sym32
	strtab   []byte
	// extra holds relocation sections with no loadable target.
	extra []*section
	edits map[string]func(h *elf.Section32, fileSize uint32)
}

// NewImage returns an empty image.
func NewImage() *Image {
	return &Image{
		sections: []*section{{}},
		symbols:  []elf.Sym32{{}},
		strtab:   []byte{0},
	}
}

// AddSection adds a section with contents and returns its index.
func (im *Image) AddSection(name string, typ elf.SectionType, flags elf.SectionFlag, data []byte, align uint32) uint16 {
	im.sections = append(im.sections, &section{name: name, typ: typ, flags: flags, data: data, size: uint32(len(data)), align: align})
	return uint16(len(im.sections) - 1)
}

// AddText adds an executable .text section.
func (im *Image) AddText(data []byte) uint16 {
	return im.AddSection(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, data, 4)
}

// AddData adds a writable .data section.
func (im *Image) AddData(data []byte) uint16 {
	return im.AddSection(".data", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_WRITE, data, 4)
}

// AddBSS adds a zero-initialized section of size bytes with no file contents.
func (im *Image) AddBSS(size uint32) uint16 {
	im.sections = append(im.sections, &section{name: ".bss", typ: elf.SHT_NOBITS, flags: elf.SHF_ALLOC | elf.SHF_WRITE, size: size, align: 4})
	return uint16(len(im.sections) - 1)
}

// AddManifest adds a manifest section holding m.
func (im *Image) AddManifest(m api.Manifest) {
	im.AddRaw(manifest.SectionName, manifest.Encode(m))
}

// AddRaw adds a non-loadable section holding data.
func (im *Image) AddRaw(name string, data []byte) {
	im.AddSection(name, elf.SHT_PROGBITS, 0, data, 1)
}

// AddSymbol adds a symbol defined in section shndx (elf.SHN_UNDEF for an
// import) and returns its index.
func (im *Image) AddSymbol(name string, shndx uint16, value uint32) uint32 {
	var off uint32
	if name != "" {
		off = uint32(len(im.strtab))
		im.strtab = append(append(im.strtab, name...), 0)
	}
	bind := elf.STB_GLOBAL
	if shndx != uint16(elf.SHN_UNDEF) {
		bind = elf.STB_LOCAL
	}
	im.symbols = append(im.symbols, elf.Sym32{
		Name:  off,
		Value: value,
		Info:  elf.ST_INFO(bind, elf.STT_NOTYPE),
		Shndx: shndx,
	})
	return uint32(len(im.symbols) - 1)
}

// AddFunc adds a global function symbol defined in section shndx and returns
// its index.
func (im *Image) AddFunc(name string, shndx uint16, value uint32) uint32 {
	i := im.AddSymbol(name, shndx, value)
	im.symbols[i].Info = elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
	return i
}

// AddImport adds an undefined symbol and returns its index.
func (im *Image) AddImport(name string) uint32 {
	return im.AddSymbol(name, uint16(elf.SHN_UNDEF), 0)
}

// AddRel adds a relocation of kind typ at offset off of section shndx against
// symbol sym.
func (im *Image) AddRel(shndx uint16, off uint32, sym uint32, typ elf.R_ARM) {
	s := im.sections[shndx]
	s.rels = append(s.rels, elf.Rel32{Off: off, Info: elf.R_INFO32(sym, uint32(typ))})
}

// AddRelSection adds a relocation section for a section which is not part of
// the image, such as debug information.
func (im *Image) AddRelSection(target string, rels ...elf.Rel32) {
	im.extra = append(im.extra, &section{name: ".rel" + target, typ: elf.SHT_REL, rels: rels})
}

// EditHeader makes Bytes pass the header of the section called name through
// fn before writing it. fn is also given the size of the whole file.
func (im *Image) EditHeader(name string, fn func(h *elf.Section32, fileSize uint32)) {
	if im.edits == nil {
		im.edits = make(map[string]func(*elf.Section32, uint32))
	}
	im.edits[name] = fn
}

func pad(b *bytes.Buffer, align int) {
	for b.Len()%align != 0 {
		b.WriteByte(0)
	}
}

// Bytes returns the ELF file.
func (im *Image) Bytes() []byte {
	all := append([]*section(nil), im.sections...)
	for _, s := range im.sections {
		if len(s.rels) > 0 {
			all = append(all, &section{name: ".rel" + s.name, typ: elf.SHT_REL, rels: s.rels})
		}
	}
	all = append(all, im.extra...)

	var syms bytes.Buffer
	_ = binary.Write(&syms, binary.LittleEndian, im.symbols)
	all = append(all,
		&section{name: ".symtab", typ: elf.SHT_SYMTAB, data: syms.Bytes(), size: uint32(syms.Len()), align: 4},
		&section{name: ".strtab", typ: elf.SHT_STRTAB, data: im.strtab, size: uint32(len(im.strtab)), align: 1},
	)
	shstrndx := len(all)
	all = append(all, &section{name: ".shstrtab", typ: elf.SHT_STRTAB, align: 1})

	shstrtab := []byte{0}
	names := make([]uint32, len(all))
	for i, s := range all[1:] {
		names[i+1] = uint32(len(shstrtab))
		shstrtab = append(append(shstrtab, s.name...), 0)
	}
	all[shstrndx].data = shstrtab
	all[shstrndx].size = uint32(len(shstrtab))

	var body bytes.Buffer
	body.Write(make([]byte, 52))
	hdrs := make([]elf.Section32, len(all))
	for i, s := range all[1:] {
		if s.typ == elf.SHT_REL {
			var rb bytes.Buffer
			_ = binary.Write(&rb, binary.LittleEndian, s.rels)
			s.data = rb.Bytes()
			s.size = uint32(rb.Len())
			s.align = 4
		}
		pad(&body, 4)
		hdrs[i+1] = elf.Section32{
			Name:      names[i+1],
			Type:      uint32(s.typ),
			Flags:     uint32(s.flags),
			Off:       uint32(body.Len()),
			Size:      s.size,
			Addralign: s.align,
		}
		switch s.typ {
		case elf.SHT_NOBITS:
		case elf.SHT_REL:
			hdrs[i+1].Entsize = 8
			hdrs[i+1].Flags = uint32(elf.SHF_INFO_LINK)
			body.Write(s.data)
		case elf.SHT_SYMTAB:
			hdrs[i+1].Entsize = 16
			hdrs[i+1].Link = uint32(shstrndx - 1)
			body.Write(s.data)
		default:
			body.Write(s.data)
		}
	}
	pad(&body, 4)
	shoff := body.Len()
	fileSize := uint32(shoff + 40*len(all))
	for i, s := range all[1:] {
		if fn, ok := im.edits[s.name]; ok {
			fn(&hdrs[i+1], fileSize)
		}
	}
	_ = binary.Write(&body, binary.LittleEndian, hdrs)

	h := elf.Header32{
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(elf.EM_ARM),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     im.Entry,
		Shoff:     uint32(shoff),
		Ehsize:    52,
		Shentsize: 40,
		Shnum:     uint16(len(all)),
		Shstrndx:  uint16(shstrndx),
	}
	copy(h.Ident[:], elf.ELFMAG)
	h.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	h.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	h.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	out := body.Bytes()
	var hb bytes.Buffer
	_ = binary.Write(&hb, binary.LittleEndian, &h)
	copy(out, hb.Bytes())
	return out
}
