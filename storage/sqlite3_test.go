package storage

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/utxoracle/utxoracled/blkfile"
	"github.com/utxoracle/utxoracled/oracle"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := CreateTables(db); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := CreateTables(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestPriceRoundTrip(t *testing.T) {
	db := openTestDB(t)

	stored := &oracle.PriceResult{
		Price:       42345,
		Deviation:   0.12,
		Band:        0.05,
		StartHeight: 825000,
		EndHeight:   825143,
		Date:        "2024-01-15",
		Samples:     31000,
	}
	if err := StorePrice(db, stored); err != nil {
		t.Fatal(err)
	}

	got, err := GetPrice(db, "2024-01-15")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("stored price not found")
	}
	if *got != *stored {
		t.Errorf("got %+v, want %+v", got, stored)
	}

	missing, err := GetPrice(db, "2024-01-16")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("unexpected result for unstored window")
	}
}

func TestPriceReplace(t *testing.T) {
	db := openTestDB(t)

	r := &oracle.PriceResult{Price: 100, StartHeight: 1, EndHeight: 2}
	if err := StorePrice(db, r); err != nil {
		t.Fatal(err)
	}
	r.Price = 200
	if err := StorePrice(db, r); err != nil {
		t.Fatal(err)
	}
	got, err := GetPrice(db, r.Window())
	if err != nil {
		t.Fatal(err)
	}
	if got.Price != 200 {
		t.Errorf("price = %d, want 200 after replace", got.Price)
	}
	// Height-range windows carry no date label.
	if got.Date != "" {
		t.Errorf("date = %q, want empty", got.Date)
	}
}

func TestLocationRoundTrip(t *testing.T) {
	db := openTestDB(t)

	const hash = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	stored := blkfile.Location{File: "blk00042.dat", Offset: 12345, Size: 999, Time: 1711000000}
	if err := StoreLocation(db, hash, stored); err != nil {
		t.Fatal(err)
	}

	got, found, err := GetLocation(db, hash)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("stored location not found")
	}
	if got != stored {
		t.Errorf("got %+v, want %+v", got, stored)
	}

	_, found, err = GetLocation(db, "00")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("unexpected hit for unstored hash")
	}
}

// LocationStore is the pipeline-facing form of the location cache.
func TestLocationStore(t *testing.T) {
	store := &LocationStore{DB: openTestDB(t)}

	const hash = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	stored := blkfile.Location{File: "blk00007.dat", Offset: 8, Size: 285, Time: 1231006505}
	if err := store.StoreLocation(hash, stored); err != nil {
		t.Fatal(err)
	}

	got, found, err := store.GetLocation(hash)
	if err != nil {
		t.Fatal(err)
	}
	if !found || got != stored {
		t.Errorf("got %+v (found=%v), want %+v", got, found, stored)
	}

	if _, found, err := store.GetLocation("ff"); err != nil || found {
		t.Errorf("unstored hash: found=%v err=%v", found, err)
	}
}
