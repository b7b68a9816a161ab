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

package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// Dir is a Storage rooted at a directory on the host filesystem, standing in
// for the device's SD card.
type Dir struct {
	root string
}

// NewDir returns a Storage serving files below root.
func NewDir(root string) (*Dir, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("unable to stat storage dir %q: %w", root, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("storage %q is not a directory", root)
	}
	return &Dir{root: root}, nil
}

// Open opens name, interpreted relative to the storage root. Names cannot
// escape the root.
func (d *Dir) Open(name string) (File, error) {
	p := filepath.Join(d.root, filepath.FromSlash(path.Clean("/"+name)))
	f, err := os.OpenFile(p, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %q: %w", name, err)
	}
	return f, nil
}
