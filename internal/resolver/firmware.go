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

import (
	"debug/elf"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
)

// ReadELFSymbols returns the defined global functions and objects of a
// linked firmware image.
func ReadELFSymbols(r io.ReaderAt) ([]Symbol, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse firmware ELF: %w", err)
	}
	defer f.Close()
	syms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware symbols: %w", err)
	}
	var out []Symbol
	for _, s := range syms {
		if s.Section == elf.SHN_UNDEF || s.Name == "" {
			continue
		}
		switch elf.ST_BIND(s.Info) {
		case elf.STB_GLOBAL, elf.STB_WEAK:
		default:
			continue
		}
		switch elf.ST_TYPE(s.Info) {
		case elf.STT_FUNC, elf.STT_OBJECT:
			out = append(out, Symbol{Name: s.Name, Address: uint32(s.Value)})
		}
	}
	return out, nil
}

// ParseAPISymbols reads an api_symbols.csv API definition and returns the
// API version and the names of the exported functions and variables.
//
// Rows are "kind,status,name,..."; only Function and Variable rows with
// status "+" are exported, and the single Version row carries "major.minor"
// in its name column.
func ParseAPISymbols(r io.Reader) (api.APIVersion, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var v api.APIVersion
	var haveVersion bool
	var names []string
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return v, nil, err
		}
		if len(rec) < 3 {
			return v, nil, fmt.Errorf("line %d: want at least 3 fields, got %d", line, len(rec))
		}
		kind, status, name := rec[0], rec[1], rec[2]
		switch kind {
		case "entry":
			// Header row.
		case "Version":
			if v, err = parseVersion(name); err != nil {
				return v, nil, fmt.Errorf("line %d: %v", line, err)
			}
			haveVersion = true
		case "Function", "Variable":
			if status == "+" {
				names = append(names, name)
			}
		}
	}
	if !haveVersion {
		return v, nil, errors.New("no Version row")
	}
	return v, names, nil
}

func parseVersion(s string) (api.APIVersion, error) {
	maj, mnr, ok := strings.Cut(s, ".")
	if !ok {
		return api.APIVersion{}, fmt.Errorf("version %q is not major.minor", s)
	}
	major, err := strconv.ParseUint(maj, 10, 16)
	if err != nil {
		return api.APIVersion{}, fmt.Errorf("major version %q: %v", maj, err)
	}
	minor, err := strconv.ParseUint(mnr, 10, 16)
	if err != nil {
		return api.APIVersion{}, fmt.Errorf("minor version %q: %v", mnr, err)
	}
	return api.APIVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// Exported picks out of syms the symbols named in names. Names the firmware
// image does not define are logged and left out.
func Exported(names []string, syms []Symbol) []Symbol {
	byName := make(map[string]Symbol, len(syms))
	for _, s := range syms {
		byName[s.Name] = s
	}
	out := make([]Symbol, 0, len(names))
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			glog.Warningf("API symbol %q is not defined in the firmware", n)
			continue
		}
		out = append(out, s)
	}
	return out
}

// FromFirmware builds the firmware's API table from its api_symbols.csv and
// its linked ELF image.
func FromFirmware(apiCSV io.Reader, firmware io.ReaderAt) (*HashTable, error) {
	v, names, err := ParseAPISymbols(apiCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to parse API definition: %w", err)
	}
	syms, err := ReadELFSymbols(firmware)
	if err != nil {
		return nil, err
	}
	exported := Exported(names, syms)
	glog.Infof("API %s: %d of %d symbols found in firmware", v, len(exported), len(names))
	return NewHashTable(v, exported)
}
