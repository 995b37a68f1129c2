// Package frontend connects the CLI to a bitcoind full node.
package frontend

import (
	"os"
	"strings"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"github.com/utxoracle/utxoracled/common"
)

const defaultRPCPort = "8332"

// NewRPCFromCreds connects to a bitcoind RPC server using HTTP POST mode.
func NewRPCFromCreds(addr, username, password string) (*rpcclient.Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         addr,
		User:         username,
		Pass:         password,
		HTTPPostMode: true, // bitcoind only supports HTTP POST mode
		DisableTLS:   true, // bitcoind does not provide TLS by default
	}
	// Notice the notification parameter is nil since notifications are
	// not supported in HTTP POST mode.
	return rpcclient.New(connCfg, nil)
}

// NewRPCFromFlags builds a client from explicitly supplied credentials.
func NewRPCFromFlags(opts *common.Options) (*rpcclient.Client, error) {
	port := opts.RPCPort
	if port == "" {
		port = defaultRPCPort
	}
	return NewRPCFromCreds(opts.RPCHost+":"+port, opts.RPCUser, opts.RPCPassword)
}

// NodeConf is the subset of bitcoin.conf this tool reads.
type NodeConf struct {
	RPCUser     string
	RPCPassword string
	RPCConnect  string
	RPCPort     string
	BlocksDir   string
}

// ReadNodeConf parses bitcoin.conf. Credentials fall back to the RPC
// cookie file when rpcuser/rpcpassword are absent, matching bitcoind's
// own authentication order.
func ReadNodeConf(confPath string) (*NodeConf, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:    true,
		IgnoreInlineComment: true,
	}, confPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", confPath)
	}
	sec := cfg.Section("")

	conf := &NodeConf{
		RPCUser:     sec.Key("rpcuser").String(),
		RPCPassword: sec.Key("rpcpassword").String(),
		RPCConnect:  sec.Key("rpcconnect").MustString("127.0.0.1"),
		RPCPort:     sec.Key("rpcport").MustString(defaultRPCPort),
		BlocksDir:   sec.Key("blocksdir").String(),
	}

	if conf.RPCUser == "" || conf.RPCPassword == "" {
		cookiePath := sec.Key("rpccookiefile").String()
		if cookiePath == "" {
			cookiePath = strings.TrimSuffix(confPath, "bitcoin.conf") + ".cookie"
		}
		cookie, err := os.ReadFile(cookiePath)
		if err != nil {
			return nil, errors.Wrap(err, "bitcoin.conf has no rpcuser/rpcpassword and the RPC cookie is unreadable")
		}
		user, pass, found := strings.Cut(strings.TrimSpace(string(cookie)), ":")
		if !found {
			return nil, errors.Errorf("malformed RPC cookie %s", cookiePath)
		}
		conf.RPCUser = user
		conf.RPCPassword = pass
	}
	return conf, nil
}

// NewRPCFromConf builds a client from bitcoin.conf (or its cookie file).
func NewRPCFromConf(confPath string) (*rpcclient.Client, error) {
	conf, err := ReadNodeConf(confPath)
	if err != nil {
		return nil, err
	}
	return NewRPCFromCreds(conf.RPCConnect+":"+conf.RPCPort, conf.RPCUser, conf.RPCPassword)
}
