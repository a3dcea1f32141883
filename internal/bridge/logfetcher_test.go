package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogSource struct {
	// fail returns a non-nil error for a given [from,to] range (by exact
	// match), simulating a provider that rejects wide ranges.
	fail func(from, to uint64) error
	// logsByBlock simulates one log emitted per key height.
	logsByBlock map[uint64]types.Log
	calls       []string
}

func (s *fakeLogSource) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	from := q.FromBlock.Uint64()
	to := q.ToBlock.Uint64()
	s.calls = append(s.calls, fmt.Sprintf("%d-%d", from, to))
	if s.fail != nil {
		if err := s.fail(from, to); err != nil {
			return nil, err
		}
	}
	var out []types.Log
	for h := from; h <= to; h++ {
		if lg, ok := s.logsByBlock[h]; ok {
			out = append(out, lg)
		}
	}
	return out, nil
}

func TestLogFetcher_SingleBlockRange(t *testing.T) {
	source := &fakeLogSource{logsByBlock: map[uint64]types.Log{5: {BlockNumber: 5}}}
	f := NewLogFetcher(source)

	var got []types.Log
	err := f.Fetch(context.Background(), []common.Address{{1}}, nil, 5, 5, func(c LogsChunk) error {
		got = append(got, c.Logs...)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLogFetcher_FromGreaterThanToSkipsSilently(t *testing.T) {
	source := &fakeLogSource{}
	f := NewLogFetcher(source)
	err := f.Fetch(context.Background(), []common.Address{{1}}, nil, 10, 5, func(LogsChunk) error {
		t.Fatal("callback must not run when from > to")
		return nil
	})
	require.NoError(t, err)
}

func TestLogFetcher_AdaptiveSplitOnTooManyResults(t *testing.T) {
	// Reject any range wider than a single block with a "too many results"
	// message; verify the fetcher recurses down to single-block fetches
	// and the union of delivered logs has no gaps or duplicates.
	wantLogs := map[uint64]types.Log{
		0: {BlockNumber: 0},
		1: {BlockNumber: 1},
		2: {BlockNumber: 2},
		3: {BlockNumber: 3},
	}
	source := &fakeLogSource{
		logsByBlock: wantLogs,
		fail: func(from, to uint64) error {
			if to > from {
				return errors.New("too many results in range")
			}
			return nil
		},
	}
	f := NewLogFetcher(source)

	seen := map[uint64]bool{}
	err := f.Fetch(context.Background(), []common.Address{{1}}, nil, 0, 3, func(c LogsChunk) error {
		for _, lg := range c.Logs {
			assert.False(t, seen[lg.BlockNumber], "duplicate delivery for block %d", lg.BlockNumber)
			seen[lg.BlockNumber] = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, len(wantLogs))
}

func TestLogFetcher_SingleBlockStillRejectedIsFatal(t *testing.T) {
	source := &fakeLogSource{
		fail: func(from, to uint64) error {
			return errors.New("block range too large")
		},
	}
	f := NewLogFetcher(source)
	err := f.Fetch(context.Background(), []common.Address{{1}}, nil, 9, 9, func(LogsChunk) error { return nil })
	require.Error(t, err)
}

func TestLogFetcher_TransientErrorRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	source := &fakeLogSource{
		fail: func(from, to uint64) error {
			attempts++
			if attempts < 2 {
				return errors.New("connection reset by peer")
			}
			return nil
		},
	}
	f := NewLogFetcher(source)
	err := f.Fetch(context.Background(), []common.Address{{1}}, nil, 0, 0, func(LogsChunk) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestLogFetcher_TransientErrorExhaustsRetries(t *testing.T) {
	source := &fakeLogSource{
		fail: func(from, to uint64) error {
			return errors.New("connection reset by peer")
		},
	}
	f := NewLogFetcher(source)
	err := f.Fetch(context.Background(), []common.Address{{1}}, nil, 0, 0, func(LogsChunk) error { return nil })
	require.Error(t, err)
}

func TestLogFetcher_AddressWindowing(t *testing.T) {
	source := &fakeLogSource{}
	f := NewLogFetcher(source)

	addrs := make([]common.Address, 60)
	for i := range addrs {
		addrs[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
	}
	err := f.Fetch(context.Background(), addrs, nil, 1, 1, func(LogsChunk) error { return nil })
	require.NoError(t, err)
	// 60 addresses at a window of 25 => 3 windowed calls.
	assert.Len(t, source.calls, 3)
}
