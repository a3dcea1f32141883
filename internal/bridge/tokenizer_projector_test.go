package bridge

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizerProjector_AttachesTokenOnMatch(t *testing.T) {
	state := NewAppState()
	uid := NewIpnftUid(addr("0xAAA"), big.NewInt(1))
	ipnftState := state.GetOrCreateIpnftState(uid)
	ipnftState.Ipnft.Symbol = "FOO"
	ipnftState.Ipnft.HasSymbol = true

	p := NewTokenizerProjector()
	tokenAddr := addr("0xTOK")
	minBlock, ok := p.ProjectBatch(state, []TokenCreatedEvent{
		{Symbol: "FOO", TokenID: big.NewInt(1), TokenAddress: tokenAddr, BirthBlock: 100},
	})
	require.True(t, ok)
	assert.Equal(t, uint64(100), minBlock)
	require.NotNil(t, ipnftState.Token)
	assert.Equal(t, tokenAddr, ipnftState.Token.TokenAddress)
	assert.Equal(t, uid, state.TokenAddressToIpnftUid[tokenAddr])
}

func TestTokenizerProjector_NoMatchIsSkippedNotRetroactive(t *testing.T) {
	state := NewAppState()
	p := NewTokenizerProjector()

	_, ok := p.ProjectBatch(state, []TokenCreatedEvent{
		{Symbol: "FOO", TokenID: big.NewInt(1), TokenAddress: addr("0xTOK"), BirthBlock: 100},
	})
	assert.False(t, ok)
	assert.Empty(t, state.TokenAddressToIpnftUid)

	// Attaching the ipnft afterwards and re-running does not retroactively
	// link unless the event is re-seen.
	uid := NewIpnftUid(addr("0xAAA"), big.NewInt(1))
	ipnftState := state.GetOrCreateIpnftState(uid)
	ipnftState.Ipnft.Symbol = "FOO"
	ipnftState.Ipnft.HasSymbol = true
	assert.Nil(t, ipnftState.Token)
}

func TestTokenizerProjector_MinimalBirthBlockAcrossBatch(t *testing.T) {
	state := NewAppState()
	uidA := NewIpnftUid(addr("0xAAA"), big.NewInt(1))
	uidB := NewIpnftUid(addr("0xAAA"), big.NewInt(2))
	sA := state.GetOrCreateIpnftState(uidA)
	sA.Ipnft.Symbol, sA.Ipnft.HasSymbol = "FOO", true
	sB := state.GetOrCreateIpnftState(uidB)
	sB.Ipnft.Symbol, sB.Ipnft.HasSymbol = "BAR", true

	p := NewTokenizerProjector()
	minBlock, ok := p.ProjectBatch(state, []TokenCreatedEvent{
		{Symbol: "FOO", TokenID: big.NewInt(1), TokenAddress: addr("0xT1"), BirthBlock: 200},
		{Symbol: "BAR", TokenID: big.NewInt(2), TokenAddress: addr("0xT2"), BirthBlock: 50},
	})
	require.True(t, ok)
	assert.Equal(t, uint64(50), minBlock)
}
