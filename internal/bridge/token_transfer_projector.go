package bridge

import (
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenTransferProjector maintains per-IPNFT holder-balance maps from
// fractional-token transfer events and records the per-iteration delta
// map the Reconciler uses to decide grant-vs-revoke.
type TokenTransferProjector struct{}

func NewTokenTransferProjector() *TokenTransferProjector {
	return &TokenTransferProjector{}
}

// HolderBalanceDeltas is the per-iteration delta map: for each IpnftUid
// touched by a transfer this iteration, the new balance of each address
// whose balance changed. Keyed by the address whose balance actually
// moved (from debited, to credited) — see DESIGN.md's open-question
// notes for why this is not swapped.
type HolderBalanceDeltas map[IpnftUid]map[common.Address]*big.Int

// ProjectBatch applies events to state's per-IPNFT holder-balance maps
// and returns the per-iteration delta map. Events whose token address has
// no known IPNFT are logged and skipped. A balance that would go negative
// is an invariant violation and aborts with an error.
func (p *TokenTransferProjector) ProjectBatch(state *AppState, events []TokenTransferEvent) (HolderBalanceDeltas, error) {
	deltas := make(HolderBalanceDeltas)

	for _, ev := range events {
		uid, ok := state.TokenAddressToIpnftUid[ev.TokenAddress]
		if !ok {
			log.Printf("[TokenTransferProjector] no ipnft for token address %s, skipping transfer", ev.TokenAddress.Hex())
			continue
		}
		ipnftState, ok := state.IpnftStateMap[uid]
		if !ok || ipnftState.Token == nil {
			log.Printf("[TokenTransferProjector] ipnft %s has no token projection, skipping transfer", uid)
			continue
		}

		touched := map[common.Address]*big.Int{}

		if ev.From != zeroAddress {
			bal := ipnftState.Token.BalanceOf(ev.From)
			newBal := new(big.Int).Sub(bal, ev.Value)
			if newBal.Sign() < 0 {
				return nil, fmt.Errorf("bridge: balance underflow for %s on ipnft %s: %s - %s", ev.From.Hex(), uid, bal, ev.Value)
			}
			ipnftState.Token.HolderBalances[ev.From] = newBal
			touched[ev.From] = newBal
		}
		if ev.To != zeroAddress {
			bal := ipnftState.Token.BalanceOf(ev.To)
			newBal := new(big.Int).Add(bal, ev.Value)
			ipnftState.Token.HolderBalances[ev.To] = newBal
			touched[ev.To] = newBal
		}

		if len(touched) == 0 {
			continue
		}
		if deltas[uid] == nil {
			deltas[uid] = map[common.Address]*big.Int{}
		}
		for addr, bal := range touched {
			deltas[uid][addr] = bal
		}
	}

	return deltas, nil
}
