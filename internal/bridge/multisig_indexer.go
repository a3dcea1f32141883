package bridge

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddedOwnerSignature and RemovedOwnerSignature are the canonical
// (current-ABI) event signatures. Their topic-0 hash is identical to the
// legacy (non-indexed owner) variant, since the "indexed" qualifier isn't
// hashed -- disambiguation between the two happens at decode time, by
// layout.
const (
	AddedOwnerSignature   = "AddedOwner(address)"
	RemovedOwnerSignature = "RemovedOwner(address)"
)

var (
	addedOwnerTopic0   = crypto.Keccak256Hash([]byte(AddedOwnerSignature))
	removedOwnerTopic0 = crypto.Keccak256Hash([]byte(RemovedOwnerSignature))

	addressArg = abi.Arguments{{Type: mustAddressType()}}
)

func mustAddressType() abi.Type {
	t, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// MultisigOwnerEventTopics returns the topic-0 filter for AddedOwner and
// RemovedOwner logs, used to build the Log Fetcher's event-signature set
// for the multisig sweep.
func MultisigOwnerEventTopics() [][]common.Hash {
	return [][]common.Hash{{addedOwnerTopic0, removedOwnerTopic0}}
}

// DecodeMultisigOwnerEvent decodes a raw AddedOwner/RemovedOwner log.
// It tries the current ABI (owner indexed, carried in Topics[1]) first,
// and falls back to the legacy ABI (owner non-indexed, carried in Data)
// on decode-layout mismatch.
func DecodeMultisigOwnerEvent(l types.Log) (MultisigOwnerEvent, error) {
	var added bool
	switch l.Topics[0] {
	case addedOwnerTopic0:
		added = true
	case removedOwnerTopic0:
		added = false
	default:
		return MultisigOwnerEvent{}, fmt.Errorf("bridge: log topic0 %s is not an AddedOwner/RemovedOwner signature", l.Topics[0].Hex())
	}

	owner, err := decodeOwnerLayout(l)
	if err != nil {
		return MultisigOwnerEvent{}, fmt.Errorf("bridge: decode owner for %s: %w", l.Topics[0].Hex(), err)
	}

	return MultisigOwnerEvent{
		BlockNumber:  l.BlockNumber,
		MultisigAddr: l.Address,
		Owner:        owner,
		Added:        added,
	}, nil
}

func decodeOwnerLayout(l types.Log) (common.Address, error) {
	// Current ABI: owner is indexed, so it lands in Topics[1].
	if len(l.Topics) >= 2 {
		return common.BytesToAddress(l.Topics[1].Bytes()), nil
	}
	// Legacy ABI: owner is a plain (non-indexed) argument in Data.
	values, err := addressArg.Unpack(l.Data)
	if err != nil || len(values) != 1 {
		return common.Address{}, fmt.Errorf("legacy layout unpack failed: %w", err)
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("legacy layout decoded non-address value")
	}
	return owner, nil
}

// MultisigIndexer fetches and applies AddedOwner/RemovedOwner logs for
// every known multisig address.
type MultisigIndexer struct {
	fetcher  *LogFetcher
	resolver *MultisigResolver
}

func NewMultisigIndexer(fetcher *LogFetcher, resolver *MultisigResolver) *MultisigIndexer {
	return &MultisigIndexer{fetcher: fetcher, resolver: resolver}
}

// ProbeNewAddresses resolves every address in candidates that is not yet
// in state.MultisigMap, via the Multisig Resolver. A confirmed multisig's
// history is then fully reconstructed: current owners from the oracle,
// plus every RemovedOwner emitted from block 0 through toBlock that isn't
// currently present, inserted into FormerOwners.
func (ix *MultisigIndexer) ProbeNewAddresses(ctx context.Context, state *AppState, candidates []common.Address, toBlock uint64, codeSource func(context.Context, common.Address) ([]byte, error)) error {
	for _, addr := range candidates {
		if _, known := state.MultisigMap[addr]; known {
			continue
		}
		owners, isMultisig, err := ix.resolver.Resolve(ctx, addr, codeSource)
		if err != nil {
			return fmt.Errorf("bridge: resolve multisig candidate %s: %w", addr.Hex(), err)
		}
		if !isMultisig {
			state.MultisigMap[addr] = &MultisigEntry{State: nil}
			continue
		}

		ms := NewMultisigState()
		for owner := range owners {
			ms.CurrentOwners[owner] = true
		}
		if err := ix.backfillFormerOwners(ctx, ms, addr, toBlock); err != nil {
			return err
		}
		state.MultisigMap[addr] = &MultisigEntry{State: ms}
	}
	return nil
}

func (ix *MultisigIndexer) backfillFormerOwners(ctx context.Context, ms *MultisigState, addr common.Address, toBlock uint64) error {
	return ix.fetcher.Fetch(ctx, []common.Address{addr}, [][]common.Hash{{removedOwnerTopic0}}, 0, toBlock, func(chunk LogsChunk) error {
		for _, l := range chunk.Logs {
			ev, err := DecodeMultisigOwnerEvent(l)
			if err != nil {
				log.Printf("[MultisigIndexer] skip undecodable RemovedOwner log on %s: %v", addr.Hex(), err)
				continue
			}
			if _, stillCurrent := ms.CurrentOwners[ev.Owner]; !stillCurrent {
				ms.FormerOwners[ev.Owner] = true
			}
		}
		return nil
	})
}

// IndexIteration fetches AddedOwner/RemovedOwner logs for every known
// multisig in [from, to] and applies them, returning the set of multisig
// addresses whose membership changed this iteration (used by the
// Reconciler to re-evaluate IPNFTs owned by those multisigs even absent a
// direct IPNFT event).
func (ix *MultisigIndexer) IndexIteration(ctx context.Context, state *AppState, from, to uint64) (map[common.Address]bool, error) {
	changed := make(map[common.Address]bool)
	if from > to {
		return changed, nil
	}

	var addresses []common.Address
	for addr, entry := range state.MultisigMap {
		if entry.State != nil {
			addresses = append(addresses, addr)
		}
	}
	if len(addresses) == 0 {
		return changed, nil
	}

	err := ix.fetcher.Fetch(ctx, addresses, MultisigOwnerEventTopics(), from, to, func(chunk LogsChunk) error {
		for _, l := range chunk.Logs {
			ev, err := DecodeMultisigOwnerEvent(l)
			if err != nil {
				log.Printf("[MultisigIndexer] skip undecodable owner-change log on %s: %v", l.Address.Hex(), err)
				continue
			}
			entry, ok := state.MultisigMap[ev.MultisigAddr]
			if !ok || entry.State == nil {
				continue
			}
			if ev.Added {
				entry.State.AddOwner(ev.Owner)
			} else {
				entry.State.RemoveOwner(ev.Owner)
			}
			changed[ev.MultisigAddr] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: index multisig owner changes [%d,%d]: %w", from, to, err)
	}
	return changed, nil
}
