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

package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/storage"
)

// nameChunk is how many bytes of a NUL-terminated name are read at a time.
const nameChunk = 32

// reader is the only way the loader touches the image file. Every access is
// an explicit seek followed by a read; nothing relies on the position left
// behind by a previous call unless stated.
type reader struct {
	f storage.File
	// size is the length of the file, measured when the header is read.
	size int64
}

// measure records the length of the file.
func (r *reader) measure() error {
	n, err := r.f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	r.size = n
	return nil
}

// contains reports whether the n bytes at off lie within the file.
func (r *reader) contains(off, n uint32) bool {
	return int64(off)+int64(n) <= r.size
}

func (r *reader) seek(off int64) error {
	if _, err := r.f.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seek to 0x%x: %w", off, err)
	}
	return nil
}

func (r *reader) tell() (int64, error) {
	return r.f.Seek(0, io.SeekCurrent)
}

// readFull fills b from the current position.
func (r *reader) readFull(b []byte) error {
	if _, err := io.ReadFull(r.f, b); err != nil {
		return fmt.Errorf("read of %d bytes: %w", len(b), err)
	}
	return nil
}

// read decodes a little-endian fixed-size record from the current position.
func (r *reader) read(v any) error {
	if err := binary.Read(r.f, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("read of %T: %w", v, err)
	}
	return nil
}

// readAt decodes a record at off and restores the current position.
func (r *reader) readAt(off int64, v any) (err error) {
	old, err := r.tell()
	if err != nil {
		return err
	}
	defer func() {
		if serr := r.seek(old); err == nil {
			err = serr
		}
	}()
	if err := r.seek(off); err != nil {
		return err
	}
	return r.read(v)
}

// readString reads the NUL-terminated string at off and restores the current
// position.
func (r *reader) readString(off int64) (s string, err error) {
	old, err := r.tell()
	if err != nil {
		return "", err
	}
	defer func() {
		if serr := r.seek(old); err == nil {
			err = serr
		}
	}()
	if err := r.seek(off); err != nil {
		return "", err
	}

	var name []byte
	buf := make([]byte, nameChunk)
	for {
		n, err := io.ReadFull(r.f, buf)
		if i := bytes.IndexByte(buf[:n], 0); i >= 0 {
			return string(append(name, buf[:i]...)), nil
		}
		if err != nil {
			return "", fmt.Errorf("unterminated string at 0x%x: %w", off, err)
		}
		name = append(name, buf...)
	}
}
