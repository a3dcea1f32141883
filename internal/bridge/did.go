package bridge

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// caip2ByChainID is the closed chain_id -> CAIP-2 network identifier
// allowlist used to build did:pkh identifiers. Unknown chain ids are a
// fatal configuration error, not a default/fallback.
var caip2ByChainID = map[uint64]string{
	1:        "eip155:1",
	11155111: "eip155:11155111",
}

// DidPkh is a did:pkh decentralized identifier for a blockchain account,
// of the form did:pkh:{caip2}:{checksum-address}.
type DidPkh struct {
	Caip2   string
	Address common.Address
}

// NewDidPkh builds a DidPkh for addr on the given chain id. It fails for
// any chain id outside the closed allowlist.
func NewDidPkh(chainID uint64, addr common.Address) (DidPkh, error) {
	caip2, ok := caip2ByChainID[chainID]
	if !ok {
		return DidPkh{}, fmt.Errorf("bridge: unknown chain id %d for did:pkh construction", chainID)
	}
	return DidPkh{Caip2: caip2, Address: addr}, nil
}

func (d DidPkh) String() string {
	return fmt.Sprintf("did:pkh:%s:%s", d.Caip2, d.Address.Hex())
}
