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

// fap_loader checks that application images load against a firmware's API.
//
// Usage:
//
//	go run ./cmd/fap_loader --logtostderr --apps_dir=/path/to/sd/apps \
//	  --firmware_elf=firmware.elf --api_symbols=api_symbols.csv \
//	  Tools/clock.fap Games/snake.fap
//
// The API can also be read from a database populated by api_import, using
// --db_driver and --db_uri. Given both, the database extends the firmware's
// API. With --listen the loaded images are kept mapped and their debug
// information is served over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"github.com/DarkFlippers/unleashed-firmware-sub041/cmd/fap_loader/impl"
)

var (
	appsDir        = flag.String("apps_dir", "", "Directory application paths are relative to")
	ext4Image      = flag.String("ext4_image", "", "ext4 filesystem image to read applications from instead of apps_dir")
	firmwareELF    = flag.String("firmware_elf", "", "Firmware ELF image holding the API symbols")
	apiSymbols     = flag.String("api_symbols", "", "CSV table of the API exported by the firmware")
	dbDriver       = flag.String("db_driver", "", "Read the API from a database instead; one of [sqlite3, mysql]")
	dbURI          = flag.String("db_uri", "", "URI of the API database")
	ramBase        = flag.Uint("ram_base", 0x20000000, "Base address of the emulated RAM")
	ramSize        = flag.Uint("ram_size", 192*1024, "Size in bytes of the emulated RAM")
	hardwareTarget = flag.Uint("hardware_target", 7, "Hardware target id of the emulated device, 0 to skip the check")
	parallelism    = flag.Int("parallelism", 4, "How many applications to load at once")
	listen         = flag.String("listen", "", "If set, serve debug info on this address until interrupted")
)

func main() {
	flag.Parse()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := impl.Main(ctx, impl.LoaderOpts{
		AppsDir:        *appsDir,
		Ext4Image:      *ext4Image,
		Apps:           flag.Args(),
		FirmwareELF:    *firmwareELF,
		APISymbols:     *apiSymbols,
		DBDriver:       *dbDriver,
		DBURI:          *dbURI,
		RAMBase:        uint32(*ramBase),
		RAMSize:        uint32(*ramSize),
		HardwareTarget: uint16(*hardwareTarget),
		Parallelism:    *parallelism,
		Listen:         *listen,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
