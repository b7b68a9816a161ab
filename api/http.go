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

const (
	// HTTPGetDebugInfo is the path of the URL to get the debug info of the
	// most recently loaded application.
	HTTPGetDebugInfo = "fap/v0/debug-info"
	// HTTPGetDebugLink is the path of the URL to get the raw debug link of
	// the most recently loaded application.
	HTTPGetDebugLink = "fap/v0/debug-link"
	// HTTPGetReports is the path of the URL to get the load reports of all
	// checked applications.
	HTTPGetReports = "fap/v0/reports"
)

// Report is the outcome of loading one application image.
type Report struct {
	Path           string     `json:"path"`
	Name           string     `json:"name,omitempty"`
	APIVersion     string     `json:"api_version,omitempty"`
	StackSize      uint16     `json:"stack_size,omitempty"`
	Preload        string     `json:"preload"`
	Load           string     `json:"load,omitempty"`
	MissingImports []string   `json:"missing_imports,omitempty"`
	Trampolines    int        `json:"trampolines,omitempty"`
	Debug          *DebugInfo `json:"debug,omitempty"`
}
