// Package storage persists inference results and resolved block
// locations in a local sqlite database, so re-running a day that has
// already been priced skips the RPC walk and the file scan.
package storage

import (
	"database/sql"
	"time"

	"github.com/utxoracle/utxoracled/blkfile"
	"github.com/utxoracle/utxoracled/oracle"
)

// CreateTables creates our tables if they don't already exist.
func CreateTables(conn *sql.DB) error {
	pricesTable := `
		CREATE TABLE IF NOT EXISTS prices (
			window TEXT PRIMARY KEY,
			price INTEGER,
			deviation REAL,
			band REAL,
			start_height INTEGER,
			end_height INTEGER,
			samples INTEGER
		);
	`
	if _, err := conn.Exec(pricesTable); err != nil {
		return err
	}

	locationsTable := `
		CREATE TABLE IF NOT EXISTS block_locations (
			hash TEXT PRIMARY KEY,
			file TEXT,
			offset INTEGER,
			size INTEGER,
			time INTEGER
		);
	`
	_, err := conn.Exec(locationsTable)
	return err
}

// StorePrice records (or replaces) the result for its window.
func StorePrice(conn *sql.DB, r *oracle.PriceResult) error {
	insert := `
		INSERT OR REPLACE INTO prices
		(window, price, deviation, band, start_height, end_height, samples)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`
	_, err := conn.Exec(insert, r.Window(), r.Price, r.Deviation, r.Band,
		r.StartHeight, r.EndHeight, r.Samples)
	return err
}

// GetPrice returns the stored result for a window label, or nil when the
// window has not been priced yet.
func GetPrice(conn *sql.DB, window string) (*oracle.PriceResult, error) {
	query := `
		SELECT price, deviation, band, start_height, end_height, samples
		FROM prices WHERE window = ?;
	`
	r := &oracle.PriceResult{}
	err := conn.QueryRow(query, window).Scan(&r.Price, &r.Deviation, &r.Band,
		&r.StartHeight, &r.EndHeight, &r.Samples)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// Date-mode windows carry the date as their label; height-range
	// windows leave it empty.
	if _, perr := time.Parse("2006-01-02", window); perr == nil {
		r.Date = window
	}
	return r, nil
}

// StoreLocation records where a block was found on disk.
func StoreLocation(conn *sql.DB, hash string, loc blkfile.Location) error {
	insert := `
		INSERT OR REPLACE INTO block_locations
		(hash, file, offset, size, time)
		VALUES (?, ?, ?, ?, ?);
	`
	_, err := conn.Exec(insert, hash, loc.File, loc.Offset, loc.Size, loc.Time)
	return err
}

// GetLocation returns the stored location of a block hash; found is
// false when the hash has never been resolved.
func GetLocation(conn *sql.DB, hash string) (loc blkfile.Location, found bool, err error) {
	query := `
		SELECT file, offset, size, time FROM block_locations WHERE hash = ?;
	`
	err = conn.QueryRow(query, hash).Scan(&loc.File, &loc.Offset, &loc.Size, &loc.Time)
	if err == sql.ErrNoRows {
		return loc, false, nil
	}
	if err != nil {
		return loc, false, err
	}
	return loc, true, nil
}

// LocationStore adapts a database handle to the pipeline's location
// cache, letting a re-run of an already-located window skip the blk
// file scan.
type LocationStore struct {
	DB *sql.DB
}

func (s *LocationStore) GetLocation(hash string) (blkfile.Location, bool, error) {
	return GetLocation(s.DB, hash)
}

func (s *LocationStore) StoreLocation(hash string, loc blkfile.Location) error {
	return StoreLocation(s.DB, hash, loc)
}
