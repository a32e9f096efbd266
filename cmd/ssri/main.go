// Command ssri runs or serves RISC-V scripts stored in a CKB-style chain's cells.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ckb-ecofund/ssri-runner-go/chainrpc"
	"github.com/ckb-ecofund/ssri-runner-go/ckbtypes"
	"github.com/ckb-ecofund/ssri-runner-go/config"
	"github.com/ckb-ecofund/ssri-runner-go/hexutil"
	"github.com/ckb-ecofund/ssri-runner-go/logger"
	"github.com/ckb-ecofund/ssri-runner-go/rpcserver"
	"github.com/ckb-ecofund/ssri-runner-go/ssri"
)

func main() {
	logConfig := logger.NewConfig(true, "")
	logConfig.EnableSubSystem(ssri.SubSystem)
	logConfig.EnableSubSystem(chainrpc.SubSystem)
	logConfig.EnableSubSystem(rpcserver.SubSystem)
	ctx := logger.ContextWithLogConfig(context.Background(), logConfig)

	if len(os.Args) < 2 {
		logger.Fatal(ctx, "Need a subcommand: run, server")
	}

	switch os.Args[1] {
	case "run":
		runCommand(ctx, os.Args[2:])
	case "server":
		serverCommand(ctx, os.Args[2:])
	default:
		logger.Fatal(ctx, "Unknown subcommand %q: need run or server", os.Args[1])
	}
}

func runCommand(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	txHash := fs.String("tx-hash", "", "hex tx hash of the cell holding the script")
	index := fs.Uint("index", 0, "output index of the cell holding the script")
	ckbRPC := fs.String("ckb-rpc", config.DefaultChainRPCURL, "chain node JSON-RPC URL")
	_ = fs.Parse(args)

	cfg := config.RunConfig{
		TxHash:   *txHash,
		Index:    uint32(*index),
		ChainRPC: *ckbRPC,
		Args:     fs.Args(),
	}
	logger.Verbose(ctx, "Run config: %s", cfg)

	outPoint, err := parseOutPoint(cfg.TxHash, cfg.Index)
	if err != nil {
		logger.Fatal(ctx, "Invalid --tx-hash: %s", err)
	}

	scriptArgs, err := parseHexArgs(cfg.Args)
	if err != nil {
		logger.Fatal(ctx, "Invalid argument: %s", err)
	}

	chain := chainrpc.New(cfg.ChainRPC)
	runner := ssri.NewRunner(chain)

	result, hasResult, err := runner.RunScriptLevelCode(ctx, outPoint, scriptArgs)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}

	if !hasResult {
		fmt.Println("Ok(None)")
		return
	}
	fmt.Println(hexutil.ToString(result))
}

func serverCommand(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	ckbRPC := fs.String("ckb-rpc", config.DefaultChainRPCURL, "chain node JSON-RPC URL")
	addr := fs.String("server-addr", config.DefaultServerAddress, "address to bind the JSON-RPC server to")
	_ = fs.Parse(args)

	cfg := config.ServerConfig{ChainRPC: *ckbRPC, Address: *addr}
	logger.Info(ctx, "Server config: %s", cfg)

	chain := chainrpc.New(cfg.ChainRPC)
	runner := ssri.NewRunner(chain)
	server := rpcserver.New(runner)

	mux := http.NewServeMux()
	mux.Handle("/", server)
	mux.HandleFunc("/ws", server.ServeWebSocket)

	logger.Info(ctx, "Listening on %s", cfg.Address)
	if err := http.ListenAndServe(cfg.Address, mux); err != nil {
		logger.Fatal(ctx, "Server failed: %s", err)
	}
}

func parseOutPoint(txHash string, index uint32) (ckbtypes.OutPoint, error) {
	b, err := hexutil.FromString(txHash)
	if err != nil {
		return ckbtypes.OutPoint{}, err
	}
	hash, err := ckbtypes.NewH256(b)
	if err != nil {
		return ckbtypes.OutPoint{}, err
	}
	return ckbtypes.OutPoint{TxHash: hash, Index: index}, nil
}

func parseHexArgs(args []string) ([][]byte, error) {
	out := make([][]byte, len(args))
	for i, a := range args {
		a = strings.TrimSpace(a)
		b, err := hexutil.FromString(a)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
