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
	"bytes"
	"fmt"
	"strings"
	"sync"
)

// Memory is a Storage holding whole files in memory.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory returns an empty in-memory Storage.
func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

// Put stores data under path, replacing any previous contents.
func (m *Memory) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[cleanPath(path)] = data
}

// Open returns a reader over the file stored under path.
func (m *Memory) Open(path string) (File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[cleanPath(path)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", path, ErrNotFound)
	}
	return nopCloser{bytes.NewReader(data)}, nil
}

func cleanPath(p string) string {
	return strings.TrimPrefix(p, "/")
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
