package bridge

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupIpnftWithToken(state *AppState, uid IpnftUid, tokenAddr common.Address) *IpnftState {
	s := state.GetOrCreateIpnftState(uid)
	s.Token = NewTokenProjection(tokenAddr)
	state.TokenAddressToIpnftUid[tokenAddr] = uid
	return s
}

func TestTokenTransferProjector_CreditsAndDebits(t *testing.T) {
	state := NewAppState()
	uid := NewIpnftUid(addr("0xAAA"), big.NewInt(1))
	tokenAddr := addr("0xTOK")
	s := setupIpnftWithToken(state, uid, tokenAddr)

	holder := addr("0xH1")
	p := NewTokenTransferProjector()
	deltas, err := p.ProjectBatch(state, []TokenTransferEvent{
		{TokenAddress: tokenAddr, From: zeroAddress, To: holder, Value: big.NewInt(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10).String(), s.Token.BalanceOf(holder).String())
	require.Contains(t, deltas, uid)
	assert.Equal(t, big.NewInt(10).String(), deltas[uid][holder].String())
}

func TestTokenTransferProjector_UnderflowIsFatal(t *testing.T) {
	state := NewAppState()
	uid := NewIpnftUid(addr("0xAAA"), big.NewInt(1))
	tokenAddr := addr("0xTOK")
	setupIpnftWithToken(state, uid, tokenAddr)

	holder := addr("0xH1")
	p := NewTokenTransferProjector()
	_, err := p.ProjectBatch(state, []TokenTransferEvent{
		{TokenAddress: tokenAddr, From: holder, To: zeroAddress, Value: big.NewInt(10)},
	})
	require.Error(t, err)
}

func TestTokenTransferProjector_UnknownTokenAddressSkipped(t *testing.T) {
	state := NewAppState()
	p := NewTokenTransferProjector()
	deltas, err := p.ProjectBatch(state, []TokenTransferEvent{
		{TokenAddress: addr("0xUNKNOWN"), From: zeroAddress, To: addr("0xH1"), Value: big.NewInt(1)},
	})
	require.NoError(t, err)
	assert.Empty(t, deltas)
}

func TestTokenTransferProjector_BalanceConservationAcrossThresholdCross(t *testing.T) {
	state := NewAppState()
	uid := NewIpnftUid(addr("0xAAA"), big.NewInt(1))
	tokenAddr := addr("0xTOK")
	s := setupIpnftWithToken(state, uid, tokenAddr)
	holder := addr("0xH1")

	p := NewTokenTransferProjector()
	_, err := p.ProjectBatch(state, []TokenTransferEvent{
		{TokenAddress: tokenAddr, From: zeroAddress, To: holder, Value: big.NewInt(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Token.BalanceOf(holder).Cmp(big.NewInt(10)))

	_, err = p.ProjectBatch(state, []TokenTransferEvent{
		{TokenAddress: tokenAddr, From: holder, To: zeroAddress, Value: big.NewInt(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Token.BalanceOf(holder).Cmp(big.NewInt(0)))
}
