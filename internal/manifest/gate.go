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

package manifest

import "github.com/DarkFlippers/unleashed-firmware-sub041/api"

// Validate reports whether m looks like a manifest this loader understands.
func Validate(m api.Manifest) bool {
	return m.Magic == api.ManifestMagic && m.Version == api.ManifestVersion
}

// IsCompatible reports whether an application built against m's API can run
// on firmware implementing current. Only the major version is binding: a
// manifest asking for a newer minor version is still accepted.
func IsCompatible(m api.Manifest, current api.APIVersion) bool {
	return m.APIVersion.Major == current.Major
}

// IsTargetCompatible reports whether m was built for target. A zero target
// means the host does not check hardware targets.
func IsTargetCompatible(m api.Manifest, target uint16) bool {
	return target == 0 || m.HardwareTarget == target
}

// IsTooOld reports whether the application was built against an older API
// major version than the firmware implements.
func IsTooOld(m api.Manifest, current api.APIVersion) bool {
	return m.APIVersion.Major < current.Major
}

// IsTooNew reports whether the application was built against a newer API than
// the firmware implements.
func IsTooNew(m api.Manifest, current api.APIVersion) bool {
	return m.APIVersion.Major > current.Major ||
		(m.APIVersion.Major == current.Major && m.APIVersion.Minor > current.Minor)
}
