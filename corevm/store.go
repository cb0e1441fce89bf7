package corevm

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// PreparationRecord is one row of durable preparation metadata: enough
// to answer "what did we prepare, when, at what generation" offline,
// without reconstructing the live machine code.
type PreparationRecord struct {
	Name               string
	Serial             uint64
	CallSiteCount      int
	ConstantCacheCount int
	UnwindSiteCount    int
	Generation         uint64
}

// Store is the optional durable preparation-metadata sink. The
// in-memory core has no dependency on it; wiring one in is purely for
// offline inspection, following the teacher's own SQLite-backed
// Persistence (lib/runtime/persistence.go), adapted to a pure-Go
// driver (modernc.org/sqlite, no cgo) and to preparation metadata
// instead of object instances.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if absent) a SQLite database at path and
// ensures its schema exists.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("corevm: opening preparation store: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS preparations (
		name TEXT NOT NULL,
		serial INTEGER NOT NULL,
		call_site_count INTEGER NOT NULL,
		constant_cache_count INTEGER NOT NULL,
		unwind_site_count INTEGER NOT NULL,
		generation INTEGER NOT NULL,
		PRIMARY KEY (name, serial)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("corevm: creating preparations table: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordPreparation persists mc's site counts under its source's name
// and serial, at the constant generation current when it was prepared.
func (s *Store) RecordPreparation(mc *MachineCode, generation uint64) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO preparations
			(name, serial, call_site_count, constant_cache_count, unwind_site_count, generation)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		mc.Source.Name, mc.Source.Serial, mc.CallSiteCount, mc.ConstantCacheCount, mc.UnwindSiteCount, generation,
	)
	if err != nil {
		return fmt.Errorf("corevm: recording preparation: %w", err)
	}
	return nil
}

// Lookup retrieves the preparation record for (name, serial), or
// ok=false if none was recorded.
func (s *Store) Lookup(name string, serial uint64) (PreparationRecord, bool, error) {
	var rec PreparationRecord
	rec.Name, rec.Serial = name, serial

	row := s.db.QueryRow(
		`SELECT call_site_count, constant_cache_count, unwind_site_count, generation
		 FROM preparations WHERE name = ? AND serial = ?`,
		name, serial,
	)
	err := row.Scan(&rec.CallSiteCount, &rec.ConstantCacheCount, &rec.UnwindSiteCount, &rec.Generation)
	if err == sql.ErrNoRows {
		return PreparationRecord{}, false, nil
	}
	if err != nil {
		return PreparationRecord{}, false, fmt.Errorf("corevm: looking up preparation: %w", err)
	}
	return rec, true, nil
}
