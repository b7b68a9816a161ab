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

// Package db opens the SQL databases API symbol tables are kept in.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"

	_ "github.com/go-sql-driver/mysql" // Load drivers for MySQL
	_ "github.com/mattn/go-sqlite3"    // Load drivers for sqlite3
)

// Drivers lists the supported values for the driver argument of Open.
var Drivers = []string{"sqlite3", "mysql"}

// maxPings bounds how long Open waits for the database to come up.
const maxPings = 8

// Open opens the database at uri with the named driver and waits, with
// exponential backoff, until it answers.
func Open(ctx context.Context, driver, uri string) (*sql.DB, error) {
	if uri == "" {
		return nil, fmt.Errorf("no URI for %s database", driver)
	}
	db, err := sql.Open(driver, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s DB: %w", driver, err)
	}
	if driver == "sqlite3" {
		// Writers would otherwise fail with "database is locked".
		db.SetMaxOpenConns(1)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxPings), ctx)
	op := func() error {
		err := db.PingContext(ctx)
		if err != nil {
			glog.Warningf("%s DB is not ready: %v", driver, err)
		}
		return err
	}
	if err := backoff.Retry(op, bo); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s DB did not come up: %w", driver, err)
	}
	return db, nil
}
