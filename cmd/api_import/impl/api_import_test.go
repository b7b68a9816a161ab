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

package impl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/db"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/resolver"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/testonly"
)

const apiCSV = `entry,status,name,type,params
Version,+,87.1,,
Function,+,furi_delay_ms,void,uint32_t
Function,-,furi_hidden,void,
Variable,+,furi_hal_i2c_handle_external,FuriHalI2cBusHandle,
`

func firmware() []byte {
	im := testonly.NewImage()
	text := im.AddText(make([]byte, 0x100))
	data := im.AddData(make([]byte, 0x10))
	im.AddFunc("furi_delay_ms", text, 0x08000201)
	im.AddFunc("furi_hidden", text, 0x08000301)
	im.AddFunc("furi_hal_i2c_handle_external", data, 0x20000010)
	return im.Bytes()
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "api_symbols.csv")
	elfPath := filepath.Join(dir, "firmware.elf")
	dbPath := filepath.Join(dir, "api.db")
	if err := os.WriteFile(csvPath, []byte(apiCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(elfPath, firmware(), 0o644); err != nil {
		t.Fatal(err)
	}

	// Importing twice replaces rather than duplicates.
	for range 2 {
		if err := Main(context.Background(), ImportOpts{FirmwareELF: elfPath, APISymbols: csvPath, DBDriver: "sqlite3", DBURI: dbPath}); err != nil {
			t.Fatalf("Main: %v", err)
		}
	}

	d, err := db.Open(context.Background(), "sqlite3", dbPath)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer d.Close()
	s, err := resolver.NewSQL(d)
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	if got, want := s.Version(), (api.APIVersion{Major: 87, Minor: 1}); got != want {
		t.Errorf("Version() = %v, want %v", got, want)
	}
	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	want := []resolver.Symbol{
		{Name: "furi_delay_ms", Address: 0x08000201},
		{Name: "furi_hal_i2c_handle_external", Address: 0x20000010},
	}
	if diff := cmp.Diff(want, snap.Symbols(), cmpopts.SortSlices(func(a, b resolver.Symbol) bool { return a.Name < b.Name })); diff != "" {
		t.Errorf("symbols diff (-want +got):\n%s", diff)
	}
}

func TestImportBadOpts(t *testing.T) {
	for _, test := range []struct {
		desc string
		opts ImportOpts
	}{
		{desc: "no firmware", opts: ImportOpts{APISymbols: "api.csv", DBDriver: "sqlite3", DBURI: ":memory:"}},
		{desc: "missing files", opts: ImportOpts{FirmwareELF: "/nonexistent.elf", APISymbols: "/nonexistent.csv", DBDriver: "sqlite3", DBURI: ":memory:"}},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if err := Main(context.Background(), test.opts); err == nil {
				t.Error("Main() succeeded")
			}
		})
	}
}
