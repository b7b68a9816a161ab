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

// api_import stores the API a firmware exports in a database, so that
// fap_loader can link applications against it without the firmware image.
//
// Usage:
//
//	go run ./cmd/api_import --logtostderr --firmware_elf=firmware.elf \
//	  --api_symbols=api_symbols.csv --db_driver=sqlite3 --db_uri=api.db
package main

import (
	"context"
	"flag"

	"github.com/golang/glog"

	"github.com/DarkFlippers/unleashed-firmware-sub041/cmd/api_import/impl"
)

var (
	firmwareELF = flag.String("firmware_elf", "", "Firmware ELF image holding the API symbols")
	apiSymbols  = flag.String("api_symbols", "", "CSV table of the API exported by the firmware")
	dbDriver    = flag.String("db_driver", "sqlite3", "One of [sqlite3, mysql]")
	dbURI       = flag.String("db_uri", "", "URI of the API database")
)

func main() {
	flag.Parse()

	if err := impl.Main(context.Background(), impl.ImportOpts{
		FirmwareELF: *firmwareELF,
		APISymbols:  *apiSymbols,
		DBDriver:    *dbDriver,
		DBURI:       *dbURI,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
