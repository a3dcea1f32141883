package bridge

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(hex string) common.Address { return common.HexToAddress(hex) }

func TestIPNFTProjector_MintThenTransfer(t *testing.T) {
	p := NewIPNFTProjector()
	uid := NewIpnftUid(addr("0xAAA"), big.NewInt(1))
	owner := addr("0xE0A")
	next := addr("0xBBB")

	events := []IpnftEvent{
		{Uid: uid, Kind: IpnftEventMinted, To: owner, Symbol: "FOO"},
		{Uid: uid, Kind: IpnftEventTransfer, From: owner, To: next},
	}
	batches := p.ProjectBatch(events)
	b := batches[uid]
	require.NotNil(t, b)
	assert.True(t, b.Minted)
	assert.False(t, b.Burnt)
	assert.Equal(t, next, b.CurrentOwner)
	assert.Equal(t, owner, b.FormerOwner)
}

func TestIPNFTProjector_MintThenBurnSameBatchIsMintedAndBurnt(t *testing.T) {
	p := NewIPNFTProjector()
	uid := NewIpnftUid(addr("0xAAA"), big.NewInt(1))
	owner := addr("0xE0A")

	events := []IpnftEvent{
		{Uid: uid, Kind: IpnftEventMinted, To: owner, Symbol: "FOO"},
		{Uid: uid, Kind: IpnftEventTransfer, From: owner, To: zeroAddress},
	}
	batches := p.ProjectBatch(events)
	b := batches[uid]
	require.NotNil(t, b)
	assert.True(t, b.Minted)
	assert.True(t, b.Burnt)
}

func TestIPNFTProjector_TransferFromZeroIsSuppressed(t *testing.T) {
	p := NewIPNFTProjector()
	uid := NewIpnftUid(addr("0xAAA"), big.NewInt(1))
	to := addr("0xE0A")

	events := []IpnftEvent{
		{Uid: uid, Kind: IpnftEventTransfer, From: zeroAddress, To: to},
	}
	batches := p.ProjectBatch(events)
	b := batches[uid]
	require.NotNil(t, b)
	assert.False(t, b.HasOwner, "mint-covering transfer should not set owner directly")
}

func TestIPNFTProjector_TransferToZeroIsBurnt(t *testing.T) {
	p := NewIPNFTProjector()
	uid := NewIpnftUid(addr("0xAAA"), big.NewInt(1))
	from := addr("0xE0A")

	events := []IpnftEvent{
		{Uid: uid, Kind: IpnftEventTransfer, From: from, To: zeroAddress},
	}
	batches := p.ProjectBatch(events)
	b := batches[uid]
	require.NotNil(t, b)
	assert.True(t, b.Burnt)
	assert.False(t, b.HasOwner)
	assert.Equal(t, from, b.FormerOwner)
}

func TestIPNFTProjector_MergeInto_SymbolStickyAndOwnerOverwrite(t *testing.T) {
	p := NewIPNFTProjector()
	state := &IpnftProjection{}
	batch1 := &IpnftBatchProjection{}
	batch1.Symbol = "FOO"
	batch1.HasSymbol = true
	batch1.Minted = true
	batch1.CurrentOwner = addr("0xE0A")
	batch1.HasOwner = true

	require.NoError(t, p.MergeInto(state, batch1))
	assert.Equal(t, "FOO", state.Symbol)
	assert.True(t, state.Minted)

	batch2 := &IpnftBatchProjection{}
	batch2.CurrentOwner = addr("0xBBB")
	batch2.HasOwner = true
	batch2.FormerOwner = addr("0xE0A")
	batch2.HasFormer = true

	require.NoError(t, p.MergeInto(state, batch2))
	assert.Equal(t, "FOO", state.Symbol, "symbol must stick across merges")
	assert.True(t, state.Minted, "minted is OR-sticky")
	assert.Equal(t, addr("0xBBB"), state.CurrentOwner)
	assert.Equal(t, addr("0xE0A"), state.FormerOwner)
}

func TestIPNFTProjector_MergeInto_SymbolChangeIsInvariantViolation(t *testing.T) {
	p := NewIPNFTProjector()
	state := &IpnftProjection{Symbol: "FOO", HasSymbol: true}
	batch := &IpnftBatchProjection{}
	batch.Symbol = "BAR"
	batch.HasSymbol = true

	err := p.MergeInto(state, batch)
	require.Error(t, err)
}
