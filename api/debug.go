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

// MemoryMapEntry records where a named section of a loaded image lives.
type MemoryMapEntry struct {
	Name    string `json:"name"`
	Address uint32 `json:"address"`
}

// DebugInfo is what external tooling (e.g. a debugger helper) needs to find
// the symbols of a loaded application.
type DebugInfo struct {
	// AppName is the display name from the manifest, if known.
	AppName string `json:"app_name,omitempty"`
	// Entry is the absolute address of the application's entry point.
	Entry uint32 `json:"entry"`
	// MemoryMap lists every section which occupies memory.
	MemoryMap []MemoryMapEntry `json:"mmap"`
	// DebugLink is the raw contents of the .gnu_debuglink section, if any.
	DebugLink []byte `json:"debug_link,omitempty"`
}
