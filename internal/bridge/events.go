package bridge

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// IpnftEventKind discriminates the three raw IPNFT lifecycle events.
type IpnftEventKind int

const (
	IpnftEventMinted IpnftEventKind = iota
	IpnftEventTransfer
	IpnftEventBurnt
)

// IpnftEvent is a single decoded IPNFT lifecycle log, in the shape the
// IPNFT Event Projector consumes. Exactly one of the payload fields is
// meaningful per Kind: Minted uses Owner+Symbol, Transfer uses From+To,
// Burnt uses From (the former owner).
type IpnftEvent struct {
	BlockNumber uint64
	Uid         IpnftUid
	Kind        IpnftEventKind
	From        common.Address
	To          common.Address
	Symbol      string
}

// TokenCreatedEvent is the Tokenizer's "fractional token created" event,
// normalized from either the current or the legacy (MoleculesCreated)
// signature.
type TokenCreatedEvent struct {
	BlockNumber  uint64
	Symbol       string
	TokenID      *big.Int
	TokenAddress common.Address
	BirthBlock   uint64
}

// TokenTransferEvent is a fractional-token ERC20-style Transfer log.
type TokenTransferEvent struct {
	BlockNumber  uint64
	TokenAddress common.Address
	From         common.Address
	To           common.Address
	Value        *big.Int
}

// MultisigOwnerEvent is a decoded AddedOwner/RemovedOwner log.
type MultisigOwnerEvent struct {
	BlockNumber   uint64
	MultisigAddr  common.Address
	Owner         common.Address
	Added         bool // true: AddedOwner, false: RemovedOwner
}

var zeroAddress common.Address
