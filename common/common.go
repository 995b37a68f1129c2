// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package common

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Build metadata; a release build can set these at link time with
// -ldflags "-X".
var (
	Version   = "v0.0.0-dev"
	GitCommit = ""
	Branch    = ""
	BuildDate = ""
	BuildUser = ""
	NodeName  = "bitcoind"
)

// Options carries the run configuration assembled by the CLI. The core
// holds no process-wide state beyond this immutable value.
type Options struct {
	DataDir         string `json:"data_dir"`
	BlocksDir       string `json:"blocks_dir"`
	BitcoinConfPath string `json:"bitcoin_conf"`
	RPCUser         string `json:"rpcuser"`
	RPCPassword     string `json:"rpcpassword"`
	RPCHost         string `json:"rpchost"`
	RPCPort         string `json:"rpcport"`
	LogLevel        uint64 `json:"log_level,omitempty"`
	LogFile         string `json:"log_file,omitempty"`
	MetricsBindAddr string `json:"metrics_bind_address,omitempty"`
	TargetDate      string `json:"target_date,omitempty"`
	RecentBlocks    bool   `json:"recent_blocks,omitempty"`
	NoStore         bool   `json:"nostore,omitempty"`
	NoBrowser       bool   `json:"nobrowser,omitempty"`
}

// RawRequest points to the function to send an RPC request to bitcoind;
// in production, it points to btcsuite/btcd/rpcclient's RawRequest();
// in unit tests it points to a function to mock RPCs to bitcoind.
var RawRequest func(method string, params []json.RawMessage) (json.RawMessage, error)

// Time allows time-related functions to be mocked for testing,
// so that tests can be deterministic and so they don't require
// real time to elapse. In production, these point to the standard
// library `time` functions; in unit tests they point to mock
// functions (set by the specific test as required).
var Time struct {
	Sleep func(d time.Duration)
	Now   func() time.Time
}

// Log as a global variable simplifies logging
var Log *logrus.Entry

// RPCError tags a failure of the RPC collaborator so the CLI can map it
// to its own exit code, distinct from block-data failures.
type RPCError struct {
	Err error
}

func (e *RPCError) Error() string {
	return "rpc: " + e.Err.Error()
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// RpcReplyGetblockheader is the subset of the bitcoind getblockheader
// (verbose) reply that the locator needs; unneeded fields are omitted.
type RpcReplyGetblockheader struct {
	Hash   string
	Height int
	Time   int64
}

// FirstRPC tests that we can successfully reach bitcoind through the RPC
// interface. The specific RPC used here is not important.
func FirstRPC() {
	retryCount := 0
	for {
		_, err := GetBlockCount()
		if err == nil {
			if retryCount > 0 {
				Log.Warn("getblockcount RPC successful")
			}
			break
		}
		retryCount++
		if retryCount > 10 {
			Log.WithFields(logrus.Fields{
				"timeouts": retryCount,
			}).Fatal("unable to issue getblockcount RPC call to " + NodeName + " node")
		}
		Log.WithFields(logrus.Fields{
			"error": err.Error(),
			"retry": retryCount,
		}).Warn("error with getblockcount rpc, retrying...")
		Time.Sleep(time.Duration(10+retryCount*5) * time.Second) // backoff
	}
}

// GetBlockCount returns the node's current chain height.
func GetBlockCount() (int, error) {
	result, rpcErr := RawRequest("getblockcount", []json.RawMessage{})
	if rpcErr != nil {
		return 0, &RPCError{rpcErr}
	}
	var height int
	if err := json.Unmarshal(result, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// GetBlockHash returns the block hash at the given height as a 64-char
// hex string (big-endian display order).
func GetBlockHash(height int) (string, error) {
	heightJSON := json.RawMessage(strconv.Itoa(height))
	result, rpcErr := RawRequest("getblockhash", []json.RawMessage{heightJSON})
	if rpcErr != nil {
		return "", &RPCError{rpcErr}
	}
	var hash string
	if err := json.Unmarshal(result, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlockHeader returns the verbose header for the given block hash.
func GetBlockHeader(hash string) (*RpcReplyGetblockheader, error) {
	hashJSON, err := json.Marshal(hash)
	if err != nil {
		return nil, err
	}
	params := []json.RawMessage{hashJSON, json.RawMessage("true")}
	result, rpcErr := RawRequest("getblockheader", params)
	if rpcErr != nil {
		return nil, &RPCError{rpcErr}
	}
	var header RpcReplyGetblockheader
	if err := json.Unmarshal(result, &header); err != nil {
		return nil, err
	}
	return &header, nil
}
