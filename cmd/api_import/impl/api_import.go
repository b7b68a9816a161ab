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

// Package impl is the implementation of a tool which stores a firmware's API
// in a database.
package impl

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/db"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/resolver"
)

// ImportOpts encapsulates the import tool parameters.
type ImportOpts struct {
	FirmwareELF string
	APISymbols  string
	DBDriver    string
	DBURI       string
}

// Main reads the API from the firmware and replaces the one in the database
// with it.
func Main(ctx context.Context, opts ImportOpts) error {
	if opts.FirmwareELF == "" || opts.APISymbols == "" {
		return errors.New("firmware_elf and api_symbols are required")
	}
	csvFile, err := os.Open(opts.APISymbols)
	if err != nil {
		return fmt.Errorf("failed to open API table: %w", err)
	}
	defer csvFile.Close()
	elfFile, err := os.Open(opts.FirmwareELF)
	if err != nil {
		return fmt.Errorf("failed to open firmware: %w", err)
	}
	defer elfFile.Close()

	t, err := resolver.FromFirmware(csvFile, elfFile)
	if err != nil {
		return err
	}

	d, err := db.Open(ctx, opts.DBDriver, opts.DBURI)
	if err != nil {
		return err
	}
	defer d.Close()
	s, err := resolver.NewSQL(d)
	if err != nil {
		return fmt.Errorf("failed to init API tables: %w", err)
	}
	if err := s.Import(ctx, t.Version(), t.Symbols()); err != nil {
		return fmt.Errorf("failed to import API: %w", err)
	}
	glog.Infof("Imported %d symbols of API %s into %s DB", t.Len(), t.Version(), opts.DBDriver)
	return nil
}
