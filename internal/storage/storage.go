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

// Package storage provides the read-only file access the application loader
// consumes: open, seek, tell and read.
package storage

import (
	"errors"
	"io"
)

// ErrNotFound is returned by Open when the requested path does not exist.
var ErrNotFound = errors.New("file not found")

// File is an open, seekable, read-only file.
type File interface {
	io.ReadSeeker
	io.Closer
}

// Storage opens files for reading.
type Storage interface {
	Open(path string) (File, error)
}
