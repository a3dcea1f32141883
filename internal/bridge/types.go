// Package bridge implements the reconciliation engine: the projectors,
// resolvers, syncer and reconciler that turn on-chain IPNFT events,
// multisig membership, and catalogue file changes into dataset access
// operations applied against the downstream node API.
package bridge

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IpnftUid identifies a single IPNFT by its contract address and token id.
type IpnftUid struct {
	Address common.Address
	TokenID *big.Int
}

func NewIpnftUid(addr common.Address, tokenID *big.Int) IpnftUid {
	return IpnftUid{Address: addr, TokenID: new(big.Int).Set(tokenID)}
}

// String renders the uid as "{0x-hex-address}_{decimal-token-id}".
func (u IpnftUid) String() string {
	return fmt.Sprintf("%s_%s", u.Address.Hex(), u.TokenID.String())
}

// ParseIpnftUid parses the string form produced by String. It is the
// inverse operation and round-trips for all well-formed uids, including
// 256-bit-wide token ids.
func ParseIpnftUid(s string) (IpnftUid, error) {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return IpnftUid{}, fmt.Errorf("bridge: malformed ipnft uid %q", s)
	}
	if !common.IsHexAddress(parts[0]) {
		return IpnftUid{}, fmt.Errorf("bridge: malformed ipnft uid address %q", parts[0])
	}
	tokenID, ok := new(big.Int).SetString(parts[1], 10)
	if !ok {
		return IpnftUid{}, fmt.Errorf("bridge: malformed ipnft uid token id %q", parts[1])
	}
	return IpnftUid{Address: common.HexToAddress(parts[0]), TokenID: tokenID}, nil
}

// Less gives IpnftUid a total order: by address, then by token id.
func (u IpnftUid) Less(o IpnftUid) bool {
	if c := strings.Compare(u.Address.Hex(), o.Address.Hex()); c != 0 {
		return c < 0
	}
	return u.TokenID.Cmp(o.TokenID) < 0
}

// IpnftProjection is the folded view of an IPNFT's lifecycle events.
type IpnftProjection struct {
	Symbol       string
	HasSymbol    bool
	CurrentOwner common.Address
	HasOwner     bool
	FormerOwner  common.Address
	HasFormer    bool
	Minted       bool
	Burnt        bool
}

// TokenProjection is the folded view of a fractional token's transfers.
type TokenProjection struct {
	TokenAddress   common.Address
	HolderBalances map[common.Address]*big.Int
}

func NewTokenProjection(tokenAddress common.Address) *TokenProjection {
	return &TokenProjection{
		TokenAddress:   tokenAddress,
		HolderBalances: make(map[common.Address]*big.Int),
	}
}

func (t *TokenProjection) BalanceOf(addr common.Address) *big.Int {
	if b, ok := t.HolderBalances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

// AccessLevel is the catalogue's per-file classification.
type AccessLevel int

const (
	AccessPublic AccessLevel = iota
	AccessHolder
	AccessAdmin
	AccessAdmin2
)

func (a AccessLevel) String() string {
	switch a {
	case AccessPublic:
		return "Public"
	case AccessHolder:
		return "Holder"
	case AccessAdmin:
		return "Admin"
	case AccessAdmin2:
		return "Admin2"
	default:
		return "Unknown"
	}
}

// IsHolderReadable reports whether files at this level are holder-visible
// ({Public, Holder}) as opposed to owner-only ({Admin, Admin2}).
func (a AccessLevel) IsHolderReadable() bool {
	return a == AccessPublic || a == AccessHolder
}

// FileEntry is a single versioned-file catalogue record.
type FileEntry struct {
	DatasetID string
	Path      string
}

// ProjectProjection is the catalogue-side state attached to an IpnftState
// once the catalogue has classified that IPNFT into a project.
type ProjectProjection struct {
	Entry                 ProjectEntry
	LatestDataRoomOffset  uint64
	ActualFilesMap        map[string]ActualFile
	RemovedFilesMap       map[string]FileEntry
}

// ActualFile pairs a file entry with its latest known access level.
type ActualFile struct {
	Entry       FileEntry
	AccessLevel AccessLevel
}

func NewProjectProjection(entry ProjectEntry) *ProjectProjection {
	return &ProjectProjection{
		Entry:           entry,
		ActualFilesMap:  make(map[string]ActualFile),
		RemovedFilesMap: make(map[string]FileEntry),
	}
}

// ProjectEntry is a single row of the catalogue's project-directory view.
type ProjectEntry struct {
	Offset                   uint64
	IpnftUid                 IpnftUid
	Symbol                   string
	ProjectAccountID         string
	DataRoomDatasetID        string
	AnnouncementsDatasetID   string
}

// IpnftState is the full per-IPNFT aggregate: the on-chain projection plus
// the optionally-attached catalogue project and fractional token.
type IpnftState struct {
	Ipnft   IpnftProjection
	Project *ProjectProjection
	Token   *TokenProjection
}

func NewIpnftState() *IpnftState {
	return &IpnftState{}
}
