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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dsoprea/go-ext4"
)

// Ext4Image is a Storage reading files out of an ext4 filesystem image, such
// as a dump of the device's SD card.
type Ext4Image struct {
	rs io.ReadSeeker
	c  io.Closer
}

// OpenExt4Image opens the ext4 image at path.
func OpenExt4Image(path string) (*Ext4Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ext4 image %q: %w", path, err)
	}
	return &Ext4Image{rs: f, c: f}, nil
}

// NewExt4Image returns a Storage over an already open ext4 image.
func NewExt4Image(rs io.ReadSeeker) *Ext4Image {
	return &Ext4Image{rs: rs}
}

// Close releases the underlying image file, if this Storage opened it.
func (e *Ext4Image) Close() error {
	if e.c == nil {
		return nil
	}
	return e.c.Close()
}

func (e *Ext4Image) getBlockGroupDescriptor(inode int) (*ext4.BlockGroupDescriptor, error) {
	if _, err := e.rs.Seek(ext4.Superblock0Offset, io.SeekStart); err != nil {
		return nil, err
	}

	sb, err := ext4.NewSuperblockWithReader(e.rs)
	if err != nil {
		return nil, err
	}

	bgdl, err := ext4.NewBlockGroupDescriptorListWithReadSeeker(e.rs, sb)
	if err != nil {
		return nil, err
	}

	return bgdl.GetWithAbsoluteInode(inode)
}

// Open reads the whole file at path out of the image. Applications are small
// and the image is accessed strictly sequentially, so the file is buffered.
func (e *Ext4Image) Open(path string) (File, error) {
	buf, err := e.readAll(strings.Trim(path, "/"))
	if err != nil {
		return nil, err
	}
	return nopCloser{bytes.NewReader(buf)}, nil
}

func (e *Ext4Image) readAll(fullPath string) ([]byte, error) {
	bgd, err := e.getBlockGroupDescriptor(ext4.InodeRootDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to read root block group: %w", err)
	}

	dw, err := ext4.NewDirectoryWalk(e.rs, bgd, ext4.InodeRootDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to walk root directory: %w", err)
	}

	inodeNumber := 0
	for {
		p, de, err := dw.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
		if p == fullPath {
			inodeNumber = int(de.Data().Inode)
			break
		}
	}

	if inodeNumber == 0 {
		return nil, fmt.Errorf("%q: %w", fullPath, ErrNotFound)
	}

	bgd, err = e.getBlockGroupDescriptor(inodeNumber)
	if err != nil {
		return nil, err
	}

	inode, err := ext4.NewInodeWithReadSeeker(bgd, e.rs, inodeNumber)
	if err != nil {
		return nil, err
	}

	en := ext4.NewExtentNavigatorWithReadSeeker(e.rs, inode)
	r := ext4.NewInodeReader(en)

	return io.ReadAll(r)
}
