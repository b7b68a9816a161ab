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

// Package manifest decodes and gates the metadata record embedded in every
// application image.
package manifest

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
)

// SectionName is the name of the section holding the manifest record.
const SectionName = ".fapmeta"

// record is the packed on-disk layout of the manifest.
type record struct {
	Magic          uint32
	Version        uint32
	APIVersion     uint32
	HardwareTarget uint16
	StackSize      uint16
	AppVersion     uint32
	Name           [api.MaxAppNameLength]byte
	HasIcon        uint8
	Icon           [api.MaxIconSize]byte
}

// Size is the size in bytes of the packed manifest record.
var Size = binary.Size(record{})

// Decode parses a packed manifest record. Trailing bytes are ignored.
func Decode(b []byte) (api.Manifest, error) {
	if len(b) < Size {
		return api.Manifest{}, fmt.Errorf("manifest is %d bytes, want at least %d", len(b), Size)
	}
	var r record
	if err := binary.Read(bytes.NewReader(b[:Size]), binary.LittleEndian, &r); err != nil {
		return api.Manifest{}, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return api.Manifest{
		Magic:          r.Magic,
		Version:        r.Version,
		APIVersion:     api.APIVersionFromUint32(r.APIVersion),
		HardwareTarget: r.HardwareTarget,
		StackSize:      r.StackSize,
		AppVersion:     r.AppVersion,
		Name:           r.Name,
		HasIcon:        r.HasIcon != 0,
		Icon:           r.Icon,
	}, nil
}

// Encode returns the packed on-disk form of m.
func Encode(m api.Manifest) []byte {
	r := record{
		Magic:          m.Magic,
		Version:        m.Version,
		APIVersion:     m.APIVersion.Uint32(),
		HardwareTarget: m.HardwareTarget,
		StackSize:      m.StackSize,
		AppVersion:     m.AppVersion,
		Name:           m.Name,
		Icon:           m.Icon,
	}
	if m.HasIcon {
		r.HasIcon = 1
	}
	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, &r)
	return buf.Bytes()
}

// New returns a valid manifest for an application called name.
func New(name string, v api.APIVersion, target, stackSize uint16) api.Manifest {
	m := api.Manifest{
		Magic:          api.ManifestMagic,
		Version:        api.ManifestVersion,
		APIVersion:     v,
		HardwareTarget: target,
		StackSize:      stackSize,
		AppVersion:     1,
	}
	copy(m.Name[:len(m.Name)-1], name)
	return m
}
