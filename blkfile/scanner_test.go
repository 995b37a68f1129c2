package blkfile

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/utxoracle/utxoracled/common"
	"github.com/utxoracle/utxoracled/hash32"
	"github.com/utxoracle/utxoracled/parser"
)

func TestMain(m *testing.M) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	common.Log = logger.WithFields(logrus.Fields{"app": "test"})
	os.Exit(m.Run())
}

// The genesis block, as it appears inside a blk file payload.
const genesisPayloadHex = "0100000000000000000000000000000000000000000000000000000000000000" +
	"000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa" +
	"4b1e5e4a29ab5f49ffff001d1dac2b7c" +
	"01" +
	"01000000010000000000000000000000000000000000000000000000000000000000000000" +
	"ffffffff4d04ffff001d0104455468652054696d65732030332f4a616e2f32303039204368616e63" +
	"656c6c6f72206f6e206272696e6b206f66207365636f6e64206261696c6f757420666f722062616e" +
	"6b73ffffffff0100f2052a01000000434104678afdb0fe5548271967f1a67130b7105cd6a828e039" +
	"09a67962e0ea1f61deb649f6bc3f4cef38c4f35504e51ec112de5c384df7ba0b8d578a4c702b6bf1" +
	"1d5fac00000000"

const genesisHashHex = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"

// record frames a payload the way blk files store it.
func record(payload []byte) []byte {
	rec := []byte{0xF9, 0xBE, 0xB4, 0xD9,
		byte(len(payload)), byte(len(payload) >> 8), byte(len(payload) >> 16), byte(len(payload) >> 24)}
	return append(rec, payload...)
}

func writeBlockFile(t *testing.T, dir string, index int, content []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName(index)), content, 0644); err != nil {
		t.Fatal(err)
	}
}

func genesisFixture(t *testing.T) ([]byte, hash32.T) {
	t.Helper()
	payload, err := hex.DecodeString(genesisPayloadHex)
	if err != nil {
		t.Fatal(err)
	}
	hash, err := hash32.Decode(genesisHashHex)
	if err != nil {
		t.Fatal(err)
	}
	return payload, hash
}

func TestFindBlocksWithResync(t *testing.T) {
	payload, hash := genesisFixture(t)

	// Garbage and zero padding around the record force the byte-wise
	// resynchronization path.
	var content []byte
	content = append(content, 0xF9, 0xBE, 0x00) // truncated false magic
	content = append(content, make([]byte, 57)...)
	wantOffset := int64(len(content))
	content = append(content, record(payload)...)
	content = append(content, make([]byte, 100)...)

	dir := t.TempDir()
	writeBlockFile(t, dir, 0, content)

	sc := NewScanner(dir)
	targets := map[hash32.T]struct{}{hash: {}}
	found, err := sc.FindBlocks(context.Background(), targets, 0)
	if err != nil {
		t.Fatal(err)
	}
	loc, ok := found[hash]
	if !ok {
		t.Fatal("genesis block not located")
	}
	if loc.Offset != wantOffset {
		t.Errorf("offset = %d, want %d", loc.Offset, wantOffset)
	}
	if loc.Size != uint32(len(payload)) {
		t.Errorf("size = %d, want %d", loc.Size, len(payload))
	}
	if loc.Time != 1231006505 {
		t.Errorf("time = %d", loc.Time)
	}
	if loc.File != FileName(0) {
		t.Errorf("file = %s", loc.File)
	}

	// The payload reads back and re-parses to the same hash.
	got, err := sc.ReadPayload(loc)
	if err != nil {
		t.Fatal(err)
	}
	block := parser.NewBlock()
	if _, err := block.ParseFromSlice(got); err != nil {
		t.Fatal(err)
	}
	if block.GetDisplayHash() != hash {
		t.Error("reread payload hashes differently")
	}
}

func TestFindBlocksSpansFiles(t *testing.T) {
	payload, hash := genesisFixture(t)
	dir := t.TempDir()
	writeBlockFile(t, dir, 0, make([]byte, 200)) // nothing useful
	writeBlockFile(t, dir, 1, record(payload))

	sc := NewScanner(dir)
	found, err := sc.FindBlocks(context.Background(), map[hash32.T]struct{}{hash: {}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if found[hash].File != FileName(1) {
		t.Errorf("file = %s, want %s", found[hash].File, FileName(1))
	}
}

func TestFindBlocksNotFound(t *testing.T) {
	payload, _ := genesisFixture(t)
	dir := t.TempDir()
	writeBlockFile(t, dir, 0, record(payload))

	missing := hash32.T{0x42}
	_, err := NewScanner(dir).FindBlocks(context.Background(),
		map[hash32.T]struct{}{missing: {}}, 0)
	if err != ErrBlocksNotFound {
		t.Fatalf("err = %v, want ErrBlocksNotFound", err)
	}
}

func TestFindBlocksCancellation(t *testing.T) {
	payload, hash := genesisFixture(t)
	dir := t.TempDir()
	writeBlockFile(t, dir, 0, record(payload))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScanner(dir).FindBlocks(ctx, map[hash32.T]struct{}{hash: {}}, 0)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCheckXorKey(t *testing.T) {
	dir := t.TempDir()
	sc := NewScanner(dir)

	if err := sc.CheckXorKey(); err != nil {
		t.Errorf("missing xor.dat: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "xor.dat"), make([]byte, 8), 0644); err != nil {
		t.Fatal(err)
	}
	if err := sc.CheckXorKey(); err != nil {
		t.Errorf("all-zero xor.dat: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "xor.dat"), []byte{1, 2, 3, 4, 5, 6, 7, 8}, 0644); err != nil {
		t.Fatal(err)
	}
	if err := sc.CheckXorKey(); err != ErrXorRequired {
		t.Errorf("err = %v, want ErrXorRequired", err)
	}
}

func TestEstimateStartIndex(t *testing.T) {
	if got := EstimateStartIndex(100, 600); got != 86 {
		t.Errorf("EstimateStartIndex(100, 600) = %d, want 86", got)
	}
	if got := EstimateStartIndex(1, 10000); got != 0 {
		t.Errorf("EstimateStartIndex(1, 10000) = %d, want 0", got)
	}
}
