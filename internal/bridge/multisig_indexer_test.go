package bridge

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMultisigOwnerEvent_CurrentABIIndexedOwner(t *testing.T) {
	owner := addr("0xE0A")
	safe := addr("0x5AFE")
	l := types.Log{
		Address: safe,
		Topics:  []common.Hash{addedOwnerTopic0, topicFromAddress(owner)},
	}
	ev, err := DecodeMultisigOwnerEvent(l)
	require.NoError(t, err)
	assert.True(t, ev.Added)
	assert.Equal(t, owner, ev.Owner)
	assert.Equal(t, safe, ev.MultisigAddr)
}

func TestDecodeMultisigOwnerEvent_LegacyABINonIndexedOwner(t *testing.T) {
	owner := addr("0xE0A")
	packed, err := addressArg.Pack(owner)
	require.NoError(t, err)

	l := types.Log{
		Address: addr("0x5AFE"),
		Topics:  []common.Hash{removedOwnerTopic0},
		Data:    packed,
	}
	ev, err := DecodeMultisigOwnerEvent(l)
	require.NoError(t, err)
	assert.False(t, ev.Added)
	assert.Equal(t, owner, ev.Owner)
}

func TestDecodeMultisigOwnerEvent_UnknownTopicIsError(t *testing.T) {
	l := types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}
	_, err := DecodeMultisigOwnerEvent(l)
	require.Error(t, err)
}

func TestMultisigIndexer_IndexIteration_AppliesAddedAndRemoved(t *testing.T) {
	safe := addr("0x5AFE")
	ownerA := addr("0xAAA")
	ownerB := addr("0xBBB")

	ms := NewMultisigState()
	ms.CurrentOwners[ownerA] = true
	state := NewAppState()
	state.MultisigMap[safe] = &MultisigEntry{State: ms}

	source := &fakeLogSource{logsByBlock: map[uint64]types.Log{
		10: {Address: safe, BlockNumber: 10, Topics: []common.Hash{addedOwnerTopic0, topicFromAddress(ownerB)}},
		11: {Address: safe, BlockNumber: 11, Topics: []common.Hash{removedOwnerTopic0, topicFromAddress(ownerA)}},
	}}
	fetcher := NewLogFetcher(source)
	ix := NewMultisigIndexer(fetcher, nil)

	changed, err := ix.IndexIteration(context.Background(), state, 0, 20)
	require.NoError(t, err)
	assert.True(t, changed[safe])
	assert.True(t, ms.CurrentOwners[ownerB])
	assert.False(t, ms.CurrentOwners[ownerA])
	assert.True(t, ms.FormerOwners[ownerA])
}

func TestMultisigIndexer_IndexIteration_NoKnownMultisigsIsNoop(t *testing.T) {
	state := NewAppState()
	source := &fakeLogSource{}
	fetcher := NewLogFetcher(source)
	ix := NewMultisigIndexer(fetcher, nil)

	changed, err := ix.IndexIteration(context.Background(), state, 0, 20)
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Empty(t, source.calls)
}

func TestMultisigIndexer_ProbeNewAddresses_SkipsAlreadyKnown(t *testing.T) {
	safe := addr("0x5AFE")
	state := NewAppState()
	state.MultisigMap[safe] = &MultisigEntry{State: nil}

	resolver, err := NewMultisigResolver(1, "http://unused.invalid")
	require.NoError(t, err)
	ix := NewMultisigIndexer(NewLogFetcher(&fakeLogSource{}), resolver)

	codeSource := func(context.Context, common.Address) ([]byte, error) {
		t.Fatal("codeSource must not be called for an already-known address")
		return nil, nil
	}
	err = ix.ProbeNewAddresses(context.Background(), state, []common.Address{safe}, 100, codeSource)
	require.NoError(t, err)
}
