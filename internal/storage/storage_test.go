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
	"io"
	"os"
	"path/filepath"
	"testing"
)

func readAll(t *testing.T, s Storage, path string) ([]byte, error) {
	t.Helper()
	f, err := s.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func TestStorage(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "apps", "Tools"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "apps", "Tools", "clock.fap"), []byte("clock"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir, err := NewDir(root)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	mem := NewMemory()
	mem.Put("/apps/Tools/clock.fap", []byte("clock"))

	for name, s := range map[string]Storage{"dir": dir, "memory": mem} {
		t.Run(name, func(t *testing.T) {
			for _, test := range []struct {
				path     string
				want     string
				notFound bool
			}{
				{path: "/apps/Tools/clock.fap", want: "clock"},
				{path: "apps/Tools/clock.fap", want: "clock"},
				{path: "/apps/Tools/snake.fap", notFound: true},
			} {
				got, err := readAll(t, s, test.path)
				if test.notFound {
					if !errors.Is(err, ErrNotFound) {
						t.Errorf("Open(%q) = %v, want ErrNotFound", test.path, err)
					}
					continue
				}
				if err != nil {
					t.Errorf("Open(%q): %v", test.path, err)
					continue
				}
				if string(got) != test.want {
					t.Errorf("Open(%q) read %q, want %q", test.path, got, test.want)
				}
			}
		})
	}
}

func TestDirStaysInRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "sd")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := NewDir(root)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	if _, err := d.Open("../secret"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(../secret) = %v, want ErrNotFound", err)
	}
}

func TestNewDirErrors(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{f, filepath.Join(t.TempDir(), "missing")} {
		if _, err := NewDir(p); err == nil {
			t.Errorf("NewDir(%q) succeeded", p)
		}
	}
}

func TestMemorySeek(t *testing.T) {
	m := NewMemory()
	m.Put("a.fap", []byte("0123456789"))
	f, err := m.Open("a.fap")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if _, err := f.Seek(4, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	b := make([]byte, 3)
	if _, err := io.ReadFull(f, b); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(b) != "456" {
		t.Errorf("read %q after seek, want %q", b, "456")
	}
	if pos, _ := f.Seek(0, io.SeekCurrent); pos != 7 {
		t.Errorf("tell = %d, want 7", pos)
	}
}
