// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

// Package blkfile locates blocks inside a Bitcoin Core blocks directory
// (blk?????.dat files) without any index: records are found by their
// magic marker and identified by hashing the 80-byte header.
package blkfile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/utxoracle/utxoracled/common"
	"github.com/utxoracle/utxoracled/hash32"
	"github.com/utxoracle/utxoracled/parser"
)

// Mainnet record marker preceding every block payload.
var magic = [4]byte{0xF9, 0xBE, 0xB4, 0xD9}

const (
	// Declared payload size bounds; a record outside these is garbage
	// and the scanner resynchronizes instead of trusting it.
	minRecordSize = 81
	maxRecordSize = 1_000_000_000

	// Conservative blocks-per-file assumption when estimating how far
	// back in the file sequence a given chain depth reaches. Real files
	// hold substantially more.
	blocksPerFile = 50
)

var (
	// ErrBlocksNotFound is returned when the file sequence is exhausted
	// before every target hash has been located.
	ErrBlocksNotFound = errors.New("reached end of blk files without finding all target blocks")

	// ErrXorRequired is returned when the blocks directory carries a
	// non-zero xor.dat obfuscation key, which this scanner does not
	// undo.
	ErrXorRequired = errors.New("blocks directory is XOR-obfuscated (non-zero xor.dat); not supported")
)

// Location identifies where a located block record lives on disk.
type Location struct {
	File   string // file name within the blocks directory
	Offset int64  // byte offset of the magic marker
	Size   uint32 // declared payload size
	Time   uint32 // header timestamp
}

// Scanner walks a blocks directory hunting for a target set of block
// hashes. It holds no open files between calls.
type Scanner struct {
	Dir string
}

// NewScanner returns a scanner over the given blocks directory.
func NewScanner(dir string) *Scanner {
	return &Scanner{Dir: dir}
}

// FileName returns the conventional name of the nth block file.
func FileName(index int) string {
	return fmt.Sprintf("blk%05d.dat", index)
}

// fileIndex extracts the numeric index from a blk?????.dat name,
// or -1 if the name doesn't match the convention.
func fileIndex(name string) int {
	if !strings.HasPrefix(name, "blk") || !strings.HasSuffix(name, ".dat") || len(name) != 12 {
		return -1
	}
	n, err := strconv.Atoi(name[3:8])
	if err != nil {
		return -1
	}
	return n
}

// CheckXorKey inspects the directory's xor.dat, if any. An absent or
// all-zero key means payloads are stored in the clear; any other key
// yields ErrXorRequired.
func (sc *Scanner) CheckXorKey() error {
	key, err := os.ReadFile(filepath.Join(sc.Dir, "xor.dat"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "reading xor.dat")
	}
	for _, b := range key {
		if b != 0 {
			return ErrXorRequired
		}
	}
	return nil
}

// blockFiles returns the blk file names in the directory with index >=
// startIndex, in ascending order.
func (sc *Scanner) blockFiles(startIndex int) ([]string, error) {
	entries, err := os.ReadDir(sc.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading blocks directory")
	}
	var names []string
	for _, e := range entries {
		if idx := fileIndex(e.Name()); idx >= startIndex {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return fileIndex(names[i]) < fileIndex(names[j])
	})
	return names, nil
}

// LastFileIndex returns the highest blk file index present, or -1 when
// the directory holds none.
func (sc *Scanner) LastFileIndex() (int, error) {
	names, err := sc.blockFiles(0)
	if err != nil {
		return -1, err
	}
	if len(names) == 0 {
		return -1, nil
	}
	return fileIndex(names[len(names)-1]), nil
}

// EstimateStartIndex guesses which file index to begin scanning at for a
// block `depth` blocks below the chain tip, assuming the last file is
// lastIndex. The estimate errs early; scanning forward past unneeded
// blocks is cheap, missing the target file is fatal.
func EstimateStartIndex(lastIndex, depth int) int {
	start := lastIndex - depth/blocksPerFile - 2
	if start < 0 {
		start = 0
	}
	return start
}

// FindBlocks scans forward from startIndex until every hash in targets
// (big-endian display order) has been located, returning a lookup from
// hash to location. Unrecognized bytes are skipped one at a time, so
// files with zero-filled gaps or partial records are tolerated.
func (sc *Scanner) FindBlocks(ctx context.Context, targets map[hash32.T]struct{}, startIndex int) (map[hash32.T]Location, error) {
	names, err := sc.blockFiles(startIndex)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrBlocksNotFound
	}

	found := make(map[hash32.T]Location, len(targets))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := sc.scanFile(ctx, name, targets, found); err != nil {
			return nil, err
		}
		common.Log.WithFields(map[string]interface{}{
			"file":  name,
			"found": len(found),
			"want":  len(targets),
		}).Debug("scanned block file")
		if len(found) == len(targets) {
			return found, nil
		}
	}
	return nil, ErrBlocksNotFound
}

// scanFile walks one blk file, adding any target blocks to found.
func (sc *Scanner) scanFile(ctx context.Context, name string, targets map[hash32.T]struct{}, found map[hash32.T]Location) error {
	f, err := os.Open(filepath.Join(sc.Dir, name))
	if err != nil {
		return errors.Wrapf(err, "opening %s", name)
	}
	defer f.Close()

	var offset int64
	buf := make([]byte, 8+parser.HeaderSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := f.ReadAt(buf, offset)
		if n < len(buf) {
			// End of usable records in this file.
			if err == io.EOF || err == nil {
				return nil
			}
			return errors.Wrapf(err, "reading %s", name)
		}

		if [4]byte(buf[0:4]) != magic {
			offset++
			continue
		}
		size := uint32(buf[4]) | uint32(buf[5])<<8 | uint32(buf[6])<<16 | uint32(buf[7])<<24
		if size < minRecordSize || size > maxRecordSize {
			offset++
			continue
		}

		header := buf[8 : 8+parser.HeaderSize]
		blockHash := hash32.Reverse(hash32.Sum256d(header))
		if _, ok := targets[blockHash]; ok {
			timestamp := uint32(header[68]) | uint32(header[69])<<8 | uint32(header[70])<<16 | uint32(header[71])<<24
			found[blockHash] = Location{
				File:   name,
				Offset: offset,
				Size:   size,
				Time:   timestamp,
			}
			common.BlocksLocated.Inc()
			if len(found) == len(targets) {
				return nil
			}
		}
		offset += int64(8 + size)
	}
}

// ReadPayload returns the block payload (header through last transaction)
// for a previously located block.
func (sc *Scanner) ReadPayload(loc Location) ([]byte, error) {
	f, err := os.Open(filepath.Join(sc.Dir, loc.File))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", loc.File)
	}
	defer f.Close()

	payload := make([]byte, loc.Size)
	if _, err := f.ReadAt(payload, loc.Offset+8); err != nil {
		return nil, errors.Wrapf(err, "reading block at %s:%d", loc.File, loc.Offset)
	}
	return payload, nil
}
