// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

// Package parser deserializes (full) Bitcoin transactions.
package parser

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/utxoracle/utxoracled/hash32"
	"github.com/utxoracle/utxoracled/parser/internal/bytestring"
)

// Hard sanity bounds on wire counts. The consensus rules imply far lower
// limits; anything beyond these is a malformed or hostile stream.
const maxTxVectorLen = 100_000

const opReturn = 0x6A

// TxIn format as described in https://en.bitcoin.it/wiki/Transaction
type TxIn struct {
	// SHA256d of the funding transaction, internal byte order
	PrevTxHash hash32.T

	// Index of the to-be-spent output in the previous tx
	PrevTxOutIndex uint32

	// CompactSize-prefixed, could be a pubkey or a script
	ScriptSig []byte

	// Normally 0xFFFFFFFF; irrelevant unless the transaction's
	// lock_time > 0
	SequenceNumber uint32
}

// ParseFromSlice deserializes one input, returning the remainder.
func (in *TxIn) ParseFromSlice(data []byte) ([]byte, error) {
	s := bytestring.String(data)

	var prev []byte
	if !s.ReadBytes(&prev, 32) {
		return nil, errors.New("could not read PrevTxHash")
	}
	in.PrevTxHash = hash32.FromSlice(prev)

	if !s.ReadUint32(&in.PrevTxOutIndex) {
		return nil, errors.New("could not read PrevTxOutIndex")
	}

	if !s.ReadCompactLengthPrefixed((*bytestring.String)(&in.ScriptSig)) {
		return nil, errors.New("could not read ScriptSig")
	}

	if !s.ReadUint32(&in.SequenceNumber) {
		return nil, errors.New("could not read SequenceNumber")
	}

	return []byte(s), nil
}

// IsCoinbase reports whether this input is the null outpoint that funds a
// coinbase transaction (all-zero hash, index 0xFFFFFFFF).
func (in *TxIn) IsCoinbase() bool {
	return in.PrevTxHash == hash32.Nil && in.PrevTxOutIndex == 0xFFFFFFFF
}

// TxOut format as described in https://en.bitcoin.it/wiki/Transaction
type TxOut struct {
	// Non-negative int giving the number of satoshis to be transferred
	Value uint64

	// Script. CompactSize-prefixed.
	Script []byte
}

// ParseFromSlice deserializes one output, returning the remainder.
func (out *TxOut) ParseFromSlice(data []byte) ([]byte, error) {
	s := bytestring.String(data)

	if !s.ReadUint64(&out.Value) {
		return nil, errors.New("could not read TxOut value")
	}

	if !s.ReadCompactLengthPrefixed((*bytestring.String)(&out.Script)) {
		return nil, errors.New("could not read TxOut script")
	}

	return []byte(s), nil
}

// IsOpReturn reports whether the output script is a data carrier
// (first opcode OP_RETURN).
func (out *TxOut) IsOpReturn() bool {
	return len(out.Script) > 0 && out.Script[0] == opReturn
}

type rawTransaction struct {
	version        uint32
	segwit         bool
	inputs         []*TxIn
	outputs        []*TxOut
	nLockTime      uint32
	witnessBytes   int
	maxWitnessItem int
}

// Transaction encodes a full Bitcoin transaction.
type Transaction struct {
	*rawTransaction

	// The wire serialization as it appeared on disk (marker, flag and
	// witness data included for segwit transactions).
	rawBytes []byte

	// Byte slices of the original serialization, retained so that the
	// txid preimage round-trips exactly regardless of length-encoding
	// edge cases: version, input/output vectors, locktime.
	rawVersion  []byte
	rawCore     []byte
	rawLockTime []byte

	cachedTxID hash32.T
}

// NewTransaction is the constructor for a full transaction.
func NewTransaction() *Transaction {
	return &Transaction{
		rawTransaction: new(rawTransaction),
	}
}

// ParseFromSlice deserializes a single transaction from the given data,
// returning the remainder of the slice.
func (tx *Transaction) ParseFromSlice(data []byte) ([]byte, error) {
	s := bytestring.String(data)
	var err error

	if !s.ReadUint32(&tx.version) {
		return nil, errors.New("could not read version")
	}
	tx.rawVersion = data[:4]

	// Segwit marker is a zero byte where a nonzero input count would
	// otherwise appear, followed by the flag byte 0x01.
	var marker, flag byte
	if s.PeekByte(0, &marker) && marker == 0x00 && s.PeekByte(1, &flag) && flag == 0x01 {
		s.Skip(2)
		tx.segwit = true
	}

	coreStart := len(data) - s.Len()

	var inputCount uint64
	if !s.ReadCompactSize(&inputCount) {
		return nil, errors.New("could not read tx_in_count")
	}
	if inputCount == 0 || inputCount > maxTxVectorLen {
		return nil, errors.Errorf("tx_in_count %d out of range", inputCount)
	}
	tx.inputs = make([]*TxIn, inputCount)
	for i := 0; i < int(inputCount); i++ {
		in := &TxIn{}
		s, err = in.ParseFromSlice([]byte(s))
		if err != nil {
			return nil, errors.Wrap(err, "while parsing input")
		}
		tx.inputs[i] = in
	}

	var outputCount uint64
	if !s.ReadCompactSize(&outputCount) {
		return nil, errors.New("could not read tx_out_count")
	}
	if outputCount == 0 || outputCount > maxTxVectorLen {
		return nil, errors.Errorf("tx_out_count %d out of range", outputCount)
	}
	tx.outputs = make([]*TxOut, outputCount)
	for i := 0; i < int(outputCount); i++ {
		out := &TxOut{}
		s, err = out.ParseFromSlice([]byte(s))
		if err != nil {
			return nil, errors.Wrap(err, "while parsing output")
		}
		tx.outputs[i] = out
	}

	coreEnd := len(data) - s.Len()
	tx.rawCore = data[coreStart:coreEnd]

	if tx.segwit {
		for i := 0; i < int(inputCount); i++ {
			var stackCount uint64
			if !s.ReadCompactSize(&stackCount) {
				return nil, errors.New("could not read witness stack count")
			}
			if stackCount > maxTxVectorLen {
				return nil, errors.Errorf("witness stack count %d out of range", stackCount)
			}
			for j := 0; j < int(stackCount); j++ {
				var item bytestring.String
				if !s.ReadCompactLengthPrefixed(&item) {
					return nil, errors.New("could not read witness stack item")
				}
				tx.witnessBytes += len(item)
				if len(item) > tx.maxWitnessItem {
					tx.maxWitnessItem = len(item)
				}
			}
		}
	}

	lockTimeStart := len(data) - s.Len()
	if !s.ReadUint32(&tx.nLockTime) {
		return nil, errors.New("could not read nLockTime")
	}
	tx.rawLockTime = data[lockTimeStart : lockTimeStart+4]

	txLen := len(data) - s.Len()
	tx.rawBytes = data[:txLen]

	return []byte(s), nil
}

// legacyPreimage returns the serialization that txids are computed over:
// version || inputs || outputs || locktime, excluding the segwit marker,
// flag, and witness data. For legacy transactions this is the wire
// serialization itself.
func (tx *Transaction) legacyPreimage() []byte {
	if !tx.segwit {
		return tx.rawBytes
	}
	var buf bytes.Buffer
	buf.Grow(len(tx.rawVersion) + len(tx.rawCore) + len(tx.rawLockTime))
	buf.Write(tx.rawVersion)
	buf.Write(tx.rawCore)
	buf.Write(tx.rawLockTime)
	return buf.Bytes()
}

// GetDisplayHash returns the txid in big-endian display order.
func (tx *Transaction) GetDisplayHash() hash32.T {
	if tx.cachedTxID != hash32.Nil {
		return tx.cachedTxID
	}
	tx.cachedTxID = hash32.Reverse(hash32.Sum256d(tx.legacyPreimage()))
	return tx.cachedTxID
}

// GetEncodableHash returns the txid in little-endian wire format order.
func (tx *Transaction) GetEncodableHash() hash32.T {
	return hash32.Sum256d(tx.legacyPreimage())
}

// Bytes returns a full transaction's raw bytes.
func (tx *Transaction) Bytes() []byte {
	return tx.rawBytes
}

// Version returns the transaction version.
func (tx *Transaction) Version() uint32 {
	return tx.version
}

// LockTime returns the transaction locktime field.
func (tx *Transaction) LockTime() uint32 {
	return tx.nLockTime
}

// HasSegwit reports whether the wire serialization carried the segwit
// marker and flag.
func (tx *Transaction) HasSegwit() bool {
	return tx.segwit
}

// Inputs returns the transaction inputs.
func (tx *Transaction) Inputs() []*TxIn {
	return tx.inputs
}

// Outputs returns the transaction outputs.
func (tx *Transaction) Outputs() []*TxOut {
	return tx.outputs
}

// IsCoinbase reports whether this is the block subsidy transaction.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.inputs) == 1 && tx.inputs[0].IsCoinbase()
}

// HasOpReturn reports whether any output is a data carrier.
func (tx *Transaction) HasOpReturn() bool {
	for _, out := range tx.outputs {
		if out.IsOpReturn() {
			return true
		}
	}
	return false
}

// WitnessBytes returns the total witness payload size across all inputs.
func (tx *Transaction) WitnessBytes() int {
	return tx.witnessBytes
}

// MaxWitnessItem returns the size of the largest single witness stack item.
func (tx *Transaction) MaxWitnessItem() int {
	return tx.maxWitnessItem
}
