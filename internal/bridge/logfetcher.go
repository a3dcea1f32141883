package bridge

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// addressWindowSize bounds the number of addresses submitted in a single
// eth_getLogs filter.
const addressWindowSize = 25

// maxTransientRetries and retryBaseDelay implement the linear backoff
// retry policy for transient transport errors.
const maxTransientRetries = 3

const retryBaseDelay = time.Second

// tooLargeVocabulary is the fixed, case-insensitive substring vocabulary
// used to detect a "result set too large" RPC error. Order doesn't
// matter; matching is substring-any.
var tooLargeVocabulary = []string{
	"log response size exceeded",
	"query timeout",
	"query returned more than",
	"request timed out",
	"too many results",
	"result window too large",
	"too many events",
	"exceeded maximum number of events",
	"block range too large",
	"exceed maximum block range",
}

// isResultSetTooLarge reports whether err looks like an RPC "too many
// results" rejection that should trigger adaptive binary splitting.
func isResultSetTooLarge(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range tooLargeVocabulary {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// isTransientTransportError reports whether err is a transport-level
// failure (connection reset, 5xx, retry-advertising 429) worth a bounded
// linear-backoff retry, as opposed to a fatal decoding or config error.
func isTransientTransportError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporarily unavailable"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "504"),
		strings.Contains(msg, "429"):
		return true
	default:
		return false
	}
}

// LogsChunk is one delivery from the Log Fetcher: an unordered superset
// of the logs matching the filter within [FromBlock, ToBlock]. Callers
// must not assume cross-chunk ordering.
type LogsChunk struct {
	FromBlock uint64
	ToBlock   uint64
	Logs      []types.Log
}

// LogSource is the minimal RPC surface the Log Fetcher needs. It is
// satisfied by *ethclient.Client.
type LogSource interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// LogFetcher performs range-windowed, adaptively-split, retried log
// retrieval over one or more contract addresses and event-signature
// filters.
type LogFetcher struct {
	source LogSource
}

func NewLogFetcher(source LogSource) *LogFetcher {
	return &LogFetcher{source: source}
}

// Fetch delivers every log in [fromBlock, toBlock] matching addresses and
// topics, partitioned into windows of at most addressWindowSize
// addresses, via callback. callback may be invoked multiple times per
// window; the union across all invocations for a window is the complete,
// deduplicated-by-construction result for that window's range.
func (f *LogFetcher) Fetch(ctx context.Context, addresses []common.Address, topics [][]common.Hash, fromBlock, toBlock uint64, callback func(LogsChunk) error) error {
	if fromBlock > toBlock {
		return nil
	}
	if len(addresses) == 0 {
		return nil
	}
	for start := 0; start < len(addresses); start += addressWindowSize {
		end := start + addressWindowSize
		if end > len(addresses) {
			end = len(addresses)
		}
		window := addresses[start:end]
		if err := f.fetchWindow(ctx, window, topics, fromBlock, toBlock, callback); err != nil {
			return err
		}
	}
	return nil
}

func (f *LogFetcher) fetchWindow(ctx context.Context, addresses []common.Address, topics [][]common.Hash, from, to uint64, callback func(LogsChunk) error) error {
	logs, err := f.fetchRangeWithRetry(ctx, addresses, topics, from, to)
	if err == nil {
		return callback(LogsChunk{FromBlock: from, ToBlock: to, Logs: logs})
	}
	if !isResultSetTooLarge(err) {
		return fmt.Errorf("bridge: fetch logs [%d,%d]: %w", from, to, err)
	}
	if from == to {
		return fmt.Errorf("bridge: single-block log fetch still rejected at block %d: %w", from, err)
	}
	mid := from + (to-from)/2
	if err := f.fetchWindow(ctx, addresses, topics, from, mid, callback); err != nil {
		return err
	}
	return f.fetchWindow(ctx, addresses, topics, mid+1, to, callback)
}

func (f *LogFetcher) fetchRangeWithRetry(ctx context.Context, addresses []common.Address, topics [][]common.Hash, from, to uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
		Topics:    topics,
	}

	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		logs, err := f.source.FilterLogs(ctx, query)
		if err == nil {
			return logs, nil
		}
		lastErr = err
		if isResultSetTooLarge(err) {
			return nil, err
		}
		if !isTransientTransportError(err) || attempt == maxTransientRetries {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryBaseDelay * time.Duration(attempt+1)):
		}
	}
	return nil, lastErr
}
