package bridge

import (
	"log"
)

// TokenizerProjector links fractional-token contracts to their parent
// IPNFT by (token_id, symbol).
type TokenizerProjector struct{}

func NewTokenizerProjector() *TokenizerProjector {
	return &TokenizerProjector{}
}

// ProjectBatch attaches a TokenProjection to every IpnftState matched by
// (token_id, symbol) in events, registering the reverse token_address ->
// ipnft_uid mapping. Events with no IPNFT match are logged and skipped:
// a later iteration only picks them up if the event is re-seen, so IPNFT
// and Tokenizer events must be fetched in the same sweep (enforced by the
// caller, not this projector). Returns the minimal birth block across all
// newly-created tokens in the batch, or ok=false if none matched.
func (p *TokenizerProjector) ProjectBatch(state *AppState, events []TokenCreatedEvent) (minimalBirthBlock uint64, ok bool) {
	for _, ev := range events {
		probe := IpnftUid{TokenID: ev.TokenID}
		uid, ipnftState, found := state.FindIpnftByTokenIDAndSymbol(probe, ev.Symbol)
		if !found {
			log.Printf("[TokenizerProjector] no ipnft match for token_id=%s symbol=%q, skipping", ev.TokenID, ev.Symbol)
			continue
		}
		if ipnftState.Token != nil {
			continue
		}
		ipnftState.Token = NewTokenProjection(ev.TokenAddress)
		state.TokenAddressToIpnftUid[ev.TokenAddress] = uid
		if !ok || ev.BirthBlock < minimalBirthBlock {
			minimalBirthBlock = ev.BirthBlock
			ok = true
		}
	}
	return minimalBirthBlock, ok
}
