// Package config holds the small, explicit configuration structs this module's CLI
// subcommands build from flags, in the teacher's rpcnode.Config style: one plain struct
// per concern, defaults set by the caller, no generic config-file/env framework.
package config

import "fmt"

// DefaultChainRPCURL is the chain node endpoint the CLI falls back to when none is given.
const DefaultChainRPCURL = "https://testnet.ckbapp.dev/"

// DefaultServerAddress is the `server` subcommand's --server-addr default.
const DefaultServerAddress = "localhost:9090"

// RunConfig configures the `run` CLI subcommand: execute one script once and print its
// result.
type RunConfig struct {
	TxHash   string
	Index    uint32
	ChainRPC string
	Args     []string
}

func (c RunConfig) String() string {
	return fmt.Sprintf("{TxHash:%s Index:%d ChainRPC:%s Args:%v}", c.TxHash, c.Index, c.ChainRPC, c.Args)
}

// ServerConfig configures the `server` CLI subcommand: a long-running JSON-RPC listener.
type ServerConfig struct {
	ChainRPC string
	Address  string
}

func (c ServerConfig) String() string {
	return fmt.Sprintf("{ChainRPC:%s Address:%s}", c.ChainRPC, c.Address)
}
