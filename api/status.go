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

package api

// PreloadStatus is the outcome of scanning an image and gating its manifest.
type PreloadStatus int

const (
	PreloadSuccess PreloadStatus = iota
	// PreloadInvalidFile means the header, section table or a required
	// section body could not be parsed.
	PreloadInvalidFile
	// PreloadInvalidManifest means the manifest magic or version is wrong.
	PreloadInvalidManifest
	// PreloadAPIMismatch means the application needs another API major version.
	PreloadAPIMismatch
	// PreloadTargetMismatch means the application was built for other hardware.
	PreloadTargetMismatch
)

var preloadStatusText = map[PreloadStatus]string{
	PreloadSuccess:         "Success",
	PreloadInvalidFile:     "Invalid file",
	PreloadInvalidManifest: "Invalid file manifest",
	PreloadAPIMismatch:     "API version mismatch",
	PreloadTargetMismatch:  "Hardware target mismatch",
}

func (s PreloadStatus) String() string {
	if t, ok := preloadStatusText[s]; ok {
		return t
	}
	return "Unknown error"
}

// LoadStatus is the outcome of mapping a preloaded image into memory.
type LoadStatus int

const (
	LoadSuccess LoadStatus = iota
	// LoadUnspecifiedError covers read failures while materializing sections.
	LoadUnspecifiedError
	// LoadNoFreeMemory means the allocator ran out of memory.
	LoadNoFreeMemory
	// LoadMissingImports means at least one symbol could not be resolved or
	// a relocation could not be applied.
	LoadMissingImports
)

var loadStatusText = map[LoadStatus]string{
	LoadSuccess:          "Success",
	LoadUnspecifiedError: "Unknown error",
	LoadNoFreeMemory:     "Out of memory",
	LoadMissingImports:   "Missing imports",
}

func (s LoadStatus) String() string {
	if t, ok := loadStatusText[s]; ok {
		return t
	}
	return "Unknown error"
}
