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

// Package api holds the data model shared between the application loader and
// the firmware embedding it.
package api

import (
	"bytes"
	"fmt"
)

const (
	// ManifestMagic identifies a manifest section ("HDGR" little-endian).
	ManifestMagic uint32 = 0x52474448
	// ManifestVersion is the only manifest layout this loader understands.
	ManifestVersion uint32 = 1

	// MaxAppNameLength is the size of the fixed name buffer in the manifest.
	MaxAppNameLength = 32
	// MaxIconSize is the size of the fixed icon buffer in the manifest.
	MaxIconSize = 32
)

// APIVersion is the firmware API version an application was built against.
// On disk it is packed into a single 32-bit word, minor half first.
type APIVersion struct {
	Major uint16
	Minor uint16
}

// Uint32 returns the packed on-disk form of v.
func (v APIVersion) Uint32() uint32 {
	return uint32(v.Major)<<16 | uint32(v.Minor)
}

// APIVersionFromUint32 unpacks the on-disk form of an API version.
func APIVersionFromUint32(w uint32) APIVersion {
	return APIVersion{Major: uint16(w >> 16), Minor: uint16(w)}
}

// String returns the version in "major.minor" form.
func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Manifest describes an application image: what it is called, which API it
// needs and how much stack its main thread wants.
type Manifest struct {
	////// Which manifest is this? //////

	Magic   uint32
	Version uint32

	////// What does it need? //////

	// APIVersion is the firmware API the application was linked against.
	APIVersion APIVersion
	// HardwareTarget is the hardware target id the application was built for.
	HardwareTarget uint16
	// StackSize is the stack size, in bytes, requested for the main thread.
	StackSize uint16

	////// What is it? //////

	AppVersion uint32
	Name       [MaxAppNameLength]byte
	HasIcon    bool
	Icon       [MaxIconSize]byte
}

// AppName returns the display name with the trailing NUL padding removed.
func (m Manifest) AppName() string {
	if i := bytes.IndexByte(m.Name[:], 0); i >= 0 {
		return string(m.Name[:i])
	}
	return string(m.Name[:])
}

// String returns a human-readable representation of the manifest.
func (m Manifest) String() string {
	return fmt.Sprintf("%q v%d for target %d, API %s, stack %d bytes", m.AppName(), m.AppVersion, m.HardwareTarget, m.APIVersion, m.StackSize)
}
