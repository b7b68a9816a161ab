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

// Resolver maps the name of a symbol exported by the firmware to its address.
//
// Implementations are typically a sorted hash table compiled into the
// firmware, or a composite of several such tables.
type Resolver interface {
	// Resolve returns the absolute address of the named symbol, and false if
	// the firmware does not export it.
	Resolve(name string) (uint32, bool)
	// Version returns the API version the firmware implements.
	Version() APIVersion
}
