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
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
)

// SQL is a symbol table kept in a SQL database, so that firmware builds can
// publish their API once and loaders on other hosts can link against it.
// Both SQLite and MySQL are supported.
type SQL struct {
	db *sql.DB
}

// NewSQL returns a resolver backed by db. The tables are created if needed.
func NewSQL(db *sql.DB) (*SQL, error) {
	s := &SQL{db: db}
	return s, s.init()
}

// init creates the database tables if needed.
func (s *SQL) init() error {
	if _, err := s.db.Exec("CREATE TABLE IF NOT EXISTS api_symbols (name VARCHAR(255) PRIMARY KEY, address BIGINT NOT NULL)"); err != nil {
		return err
	}
	_, err := s.db.Exec("CREATE TABLE IF NOT EXISTS api_version (id INTEGER PRIMARY KEY, major INTEGER NOT NULL, minor INTEGER NOT NULL)")
	return err
}

// Import replaces the stored API with version v and the symbols in syms.
func (s *SQL) Import(ctx context.Context, v api.APIVersion, syms []Symbol) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %v", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			glog.Errorf("Rollback: %v", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM api_symbols"); err != nil {
		return fmt.Errorf("failed to clear symbols: %v", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO api_symbols (name, address) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, sym := range syms {
		if _, err := stmt.ExecContext(ctx, sym.Name, int64(sym.Address)); err != nil {
			return fmt.Errorf("failed to insert %q: %v", sym.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "REPLACE INTO api_version (id, major, minor) VALUES (0, ?, ?)", v.Major, v.Minor); err != nil {
		return fmt.Errorf("failed to store version: %v", err)
	}
	return tx.Commit()
}

// Resolve implements api.Resolver.
func (s *SQL) Resolve(name string) (uint32, bool) {
	var addr int64
	row := s.db.QueryRow("SELECT address FROM api_symbols WHERE name = ?", name)
	if err := row.Scan(&addr); err != nil {
		if err != sql.ErrNoRows {
			glog.Errorf("Resolve(%q): %v", name, err)
		}
		return 0, false
	}
	return uint32(addr), true
}

// Version implements api.Resolver. It returns the zero version if no API has
// been imported.
func (s *SQL) Version() api.APIVersion {
	var v api.APIVersion
	row := s.db.QueryRow("SELECT major, minor FROM api_version WHERE id = 0")
	if err := row.Scan(&v.Major, &v.Minor); err != nil && err != sql.ErrNoRows {
		glog.Errorf("Version(): %v", err)
	}
	return v
}

// Snapshot reads the whole table into memory.
func (s *SQL) Snapshot(ctx context.Context) (*HashTable, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, address FROM api_symbols")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var syms []Symbol
	for rows.Next() {
		var sym Symbol
		var addr int64
		if err := rows.Scan(&sym.Name, &addr); err != nil {
			return nil, err
		}
		sym.Address = uint32(addr)
		syms = append(syms, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewHashTable(s.Version(), syms)
}
