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

package resolver

import "github.com/DarkFlippers/unleashed-firmware-sub041/api"

// Composite resolves names against the firmware table first and then each of
// the extra tables in order. The first hit wins.
type Composite struct {
	firmware api.Resolver
	extra    []api.Resolver
}

// NewComposite returns a resolver chaining firmware and extra. The API version
// is the firmware's.
func NewComposite(firmware api.Resolver, extra ...api.Resolver) *Composite {
	return &Composite{firmware: firmware, extra: extra}
}

// Add appends r to the tables searched after the firmware's.
func (c *Composite) Add(r api.Resolver) {
	c.extra = append(c.extra, r)
}

// Resolve implements api.Resolver.
func (c *Composite) Resolve(name string) (uint32, bool) {
	if addr, ok := c.firmware.Resolve(name); ok {
		return addr, true
	}
	for _, r := range c.extra {
		if addr, ok := r.Resolve(name); ok {
			return addr, true
		}
	}
	return 0, false
}

// Version implements api.Resolver.
func (c *Composite) Version() api.APIVersion {
	return c.firmware.Version()
}
