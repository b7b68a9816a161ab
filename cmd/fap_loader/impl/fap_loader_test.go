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
	"bytes"
	"context"
	"debug/elf"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/db"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/manifest"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/memory"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/resolver"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/storage"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/testonly"
)

var fwVersion = api.APIVersion{Major: 87, Minor: 1}

// appImage returns an image with one data word relocated against each of
// imports.
func appImage(name string, imports ...string) []byte {
	im := testonly.NewImage()
	im.AddText(make([]byte, 8))
	data := im.AddData(make([]byte, 4*len(imports)))
	for i, imp := range imports {
		im.AddRel(data, uint32(4*i), im.AddImport(imp), elf.R_ARM_ABS32)
	}
	im.AddManifest(manifest.New(name, fwVersion, 7, 2048))
	return im.Bytes()
}

func writeApps(t *testing.T, apps map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for p, b := range apps {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, b, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func apiDB(t *testing.T) string {
	t.Helper()
	uri := filepath.Join(t.TempDir(), "api.db")
	d, err := db.Open(context.Background(), "sqlite3", uri)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer d.Close()
	s, err := resolver.NewSQL(d)
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	if err := s.Import(context.Background(), fwVersion, []resolver.Symbol{
		{Name: "furi_record_open", Address: 0x08001001},
		{Name: "furi_delay_ms", Address: 0x08002001},
	}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	return uri
}

func TestLoaderMain(t *testing.T) {
	dir := writeApps(t, map[string][]byte{
		"Tools/clock.fap":  appImage("Clock", "furi_record_open", "furi_delay_ms"),
		"Games/snake.fap":  appImage("Snake", "furi_record_open", "snake_missing"),
		"Games/broken.fap": []byte("not an elf"),
	})
	var out bytes.Buffer
	err := Main(context.Background(), LoaderOpts{
		AppsDir:        dir,
		Apps:           []string{"Tools/clock.fap", "Games/snake.fap", "Games/broken.fap"},
		DBDriver:       "sqlite3",
		DBURI:          apiDB(t),
		RAMBase:        0x20000000,
		RAMSize:        0x10000,
		HardwareTarget: 7,
		Parallelism:    2,
		Out:            &out,
	})
	if err == nil {
		t.Fatal("Main() succeeded with broken applications")
	}

	var reps []api.Report
	if err := json.Unmarshal(out.Bytes(), &reps); err != nil {
		t.Fatalf("failed to decode reports %q: %v", out.String(), err)
	}
	if len(reps) != 3 {
		t.Fatalf("got %d reports, want 3", len(reps))
	}
	for _, r := range reps {
		if r.Path == "Tools/clock.fap" && r.Debug == nil {
			t.Error("no debug info for loaded application")
		}
		r.Debug = nil
		switch r.Path {
		case "Tools/clock.fap":
			want := api.Report{Path: r.Path, Name: "Clock", APIVersion: "87.1", StackSize: 2048, Preload: "Success", Load: "Success"}
			if diff := cmp.Diff(want, r); diff != "" {
				t.Errorf("clock report diff (-want +got):\n%s", diff)
			}
		case "Games/snake.fap":
			want := api.Report{Path: r.Path, Name: "Snake", APIVersion: "87.1", StackSize: 2048, Preload: "Success", Load: "Missing imports", MissingImports: []string{"snake_missing"}}
			if diff := cmp.Diff(want, r); diff != "" {
				t.Errorf("snake report diff (-want +got):\n%s", diff)
			}
		case "Games/broken.fap":
			if r.Preload != "Invalid file" || r.Load != "" {
				t.Errorf("broken report = %+v", r)
			}
		default:
			t.Errorf("unexpected report for %q", r.Path)
		}
	}
}

func TestLoaderExtendedAPI(t *testing.T) {
	dir := writeApps(t, map[string][]byte{
		"plugin.fap": appImage("Plugin", "furi_delay_ms", "plugin_host_call"),
	})
	fw := testonly.NewImage()
	text := fw.AddText(make([]byte, 0x100))
	fw.AddFunc("furi_delay_ms", text, 0x08000201)
	csvPath := filepath.Join(dir, "api_symbols.csv")
	elfPath := filepath.Join(dir, "firmware.elf")
	if err := os.WriteFile(csvPath, []byte("entry,status,name,type,params\nVersion,+,87.1,,\nFunction,+,furi_delay_ms,void,uint32_t\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(elfPath, fw.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	uri := filepath.Join(t.TempDir(), "ext.db")
	d, err := db.Open(context.Background(), "sqlite3", uri)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	s, err := resolver.NewSQL(d)
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	if err := s.Import(context.Background(), api.APIVersion{Major: 1}, []resolver.Symbol{{Name: "plugin_host_call", Address: 0x20001001}}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	d.Close()

	var out bytes.Buffer
	if err := Main(context.Background(), LoaderOpts{
		AppsDir:     dir,
		Apps:        []string{"plugin.fap"},
		FirmwareELF: elfPath,
		APISymbols:  csvPath,
		DBDriver:    "sqlite3",
		DBURI:       uri,
		RAMBase:     0x20008000,
		RAMSize:     0x1000,
		Out:         &out,
	}); err != nil {
		t.Fatalf("Main: %v\n%s", err, out.String())
	}
}

func TestMainBadOpts(t *testing.T) {
	for _, test := range []struct {
		desc string
		opts LoaderOpts
	}{
		{desc: "no apps", opts: LoaderOpts{AppsDir: t.TempDir(), DBDriver: "sqlite3", DBURI: ":memory:"}},
		{desc: "no storage", opts: LoaderOpts{Apps: []string{"a.fap"}, DBDriver: "sqlite3", DBURI: ":memory:"}},
		{desc: "no API", opts: LoaderOpts{Apps: []string{"a.fap"}, AppsDir: t.TempDir()}},
		{desc: "firmware without API table", opts: LoaderOpts{Apps: []string{"a.fap"}, AppsDir: t.TempDir(), FirmwareELF: "fw.elf"}},
		{desc: "missing firmware", opts: LoaderOpts{Apps: []string{"a.fap"}, AppsDir: t.TempDir(), FirmwareELF: "/nonexistent.elf", APISymbols: "/nonexistent.csv"}},
		{desc: "missing app", opts: LoaderOpts{Apps: []string{"a.fap"}, AppsDir: t.TempDir(), DBDriver: "sqlite3", DBURI: ":memory:"}},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if err := Main(context.Background(), test.opts); err == nil {
				t.Error("Main() succeeded")
			}
		})
	}
}

func TestCheckerKeepsServedApps(t *testing.T) {
	st := storage.NewMemory()
	st.Put("clock.fap", appImage("Clock", "furi_delay_ms"))
	r, err := resolver.NewHashTable(fwVersion, []resolver.Symbol{{Name: "furi_delay_ms", Address: 0x08002001}})
	if err != nil {
		t.Fatalf("NewHashTable: %v", err)
	}
	region, err := memory.NewRegion(0x20000000, 0x1000)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}

	c := newChecker(st, r, region, LoaderOpts{Listen: "localhost:0"})
	if _, ok := c.LastLoaded(); ok {
		t.Error("LastLoaded() ok before loading")
	}
	if err := c.checkAll(context.Background(), []string{"clock.fap"}); err != nil {
		t.Fatalf("checkAll: %v", err)
	}
	d, ok := c.LastLoaded()
	if !ok {
		t.Fatal("LastLoaded() not ok after loading")
	}
	if d.AppName != "Clock" {
		t.Errorf("AppName = %q, want %q", d.AppName, "Clock")
	}
	if got := region.Blocks(); got == 0 {
		t.Error("served application was unmapped")
	}

	c.close()
	if got := region.Blocks(); got != 0 {
		t.Errorf("%d blocks still allocated after close", got)
	}
	if _, ok := c.LastLoaded(); ok {
		t.Error("LastLoaded() ok after close")
	}
}
