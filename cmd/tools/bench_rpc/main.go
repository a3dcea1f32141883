package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// bench_rpc measures latency of the chain RPC calls the bridge engine
// actually makes per iteration: HeaderByNumber(finalized), FilterLogs over
// a recent window, and CodeAt for a candidate address. Point it at one or
// more endpoints to compare.
func main() {
	nodesRaw := os.Getenv("BENCH_RPC_NODES")
	if nodesRaw == "" {
		log.Fatal("BENCH_RPC_NODES is required (comma-separated RPC URLs)")
	}
	addr := os.Getenv("BENCH_RPC_PROBE_ADDRESS")
	if addr == "" {
		addr = "0x0000000000000000000000000000000000000000"
	}
	windowBlocks := int64(1000)

	ctx := context.Background()
	for _, node := range strings.Split(nodesRaw, ",") {
		node = strings.TrimSpace(node)
		if node == "" {
			continue
		}
		fmt.Printf("\n========== %s ==========\n", node)
		runBench(ctx, node, common.HexToAddress(addr), windowBlocks)
	}
}

func runBench(ctx context.Context, node string, probe common.Address, windowBlocks int64) {
	client, err := ethclient.DialContext(ctx, node)
	if err != nil {
		fmt.Printf("  FAIL: dial: %v\n", err)
		return
	}
	defer client.Close()

	t0 := time.Now()
	header, err := client.HeaderByNumber(ctx, big.NewInt(rpc.FinalizedBlockNumber.Int64()))
	d1 := time.Since(t0)
	if err != nil {
		fmt.Printf("  HeaderByNumber(finalized): FAIL (%v) [%v]\n", err, d1)
		return
	}
	fmt.Printf("  HeaderByNumber(finalized): OK [%v] block=%d\n", d1, header.Number.Uint64())

	from := new(big.Int).Sub(header.Number, big.NewInt(windowBlocks))
	if from.Sign() < 0 {
		from = big.NewInt(0)
	}

	t0 = time.Now()
	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{FromBlock: from, ToBlock: header.Number})
	d2 := time.Since(t0)
	if err != nil {
		fmt.Printf("  FilterLogs(%d blocks): FAIL (%v) [%v]\n", windowBlocks, err, d2)
	} else {
		fmt.Printf("  FilterLogs(%d blocks): OK [%v] logs=%d\n", windowBlocks, d2, len(logs))
	}

	t0 = time.Now()
	code, err := client.CodeAt(ctx, probe, nil)
	d3 := time.Since(t0)
	if err != nil {
		fmt.Printf("  CodeAt(%s): FAIL (%v) [%v]\n", probe.Hex(), err, d3)
	} else {
		fmt.Printf("  CodeAt(%s): OK [%v] code_len=%d\n", probe.Hex(), d3, len(code))
	}
}
