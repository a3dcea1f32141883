package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// safeAPIBaseURLByChainID is the closed chain_id -> multisig-oracle base
// URL table.
var safeAPIBaseURLByChainID = map[uint64]string{
	1:        "https://safe-transaction-mainnet.safe.global",
	11155111: "https://safe-transaction-sepolia.safe.global",
}

// ContractCodeSource is the minimal RPC surface the Resolver needs to
// distinguish a contract address from an EOA. Satisfied by
// *ethclient.Client. nil blockNumber means "latest".
type ContractCodeSource interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// CodeSourceFunc adapts a ContractCodeSource into the plain func shape
// Resolve accepts, so callers can pass *ethclient.Client directly.
func CodeSourceFunc(src ContractCodeSource) func(context.Context, common.Address) ([]byte, error) {
	return func(ctx context.Context, addr common.Address) ([]byte, error) {
		return src.CodeAt(ctx, addr, nil)
	}
}

// safeInfoResponse mirrors the Safe Transaction Service's
// /api/v1/safes/{address}/ response shape.
type safeInfoResponse struct {
	Address string   `json:"address"`
	Owners  []string `json:"owners"`
}

// MultisigResolver answers "what are the current owners of this address,
// treated as a multisig?". Resolutions are memoized in an in-memory cache
// behind a fine-grained lock so it is safe to call concurrently from
// multiple reconciler helpers within one iteration.
type MultisigResolver struct {
	httpClient *http.Client
	chainID    uint64
	baseURL    string

	mu    sync.RWMutex
	cache map[common.Address]*ownerSet
}

type ownerSet struct {
	owners map[common.Address]bool // nil => not a multisig (confirmed EOA)
}

// NewMultisigResolver builds a Resolver for the given chain id. It fails
// fast if the chain id is not in the closed base-URL table, matching the
// spec's "unknown chain_id is a fatal error" stance applied at
// construction time.
func NewMultisigResolver(chainID uint64, overrideBaseURL string) (*MultisigResolver, error) {
	base := overrideBaseURL
	if base == "" {
		var ok bool
		base, ok = safeAPIBaseURLByChainID[chainID]
		if !ok {
			return nil, fmt.Errorf("bridge: no multisig oracle base url for chain id %d", chainID)
		}
	}
	return &MultisigResolver{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		chainID:    chainID,
		baseURL:    base,
		cache:      make(map[common.Address]*ownerSet),
	}, nil
}

// ErrNotAMultisig is returned by Resolve's callers' own logic when they
// need to distinguish "not a multisig" from "owners resolved"; Resolve
// itself signals this via the ok bool rather than an error.
var ErrNotAMultisig = fmt.Errorf("bridge: address is not a multisig")

// Resolve returns the current owner set for addr if it is a multisig
// contract, or ok=false if it is a confirmed EOA / non-multisig.
func (r *MultisigResolver) Resolve(ctx context.Context, addr common.Address, codeSource func(context.Context, common.Address) ([]byte, error)) (map[common.Address]bool, bool, error) {
	if cached, found := r.lookupCache(addr); found {
		if cached == nil {
			return nil, false, nil
		}
		return cached, true, nil
	}

	code, err := codeSource(ctx, addr)
	if err != nil {
		return nil, false, fmt.Errorf("bridge: code-at check for %s: %w", addr.Hex(), err)
	}
	if len(code) == 0 {
		r.storeCache(addr, nil)
		return nil, false, nil
	}

	owners, found, err := r.fetchFromOracle(ctx, addr)
	if err != nil {
		return nil, false, err
	}
	if !found {
		r.storeCache(addr, nil)
		return nil, false, nil
	}
	r.storeCache(addr, owners)
	return owners, true, nil
}

func (r *MultisigResolver) lookupCache(addr common.Address) (map[common.Address]bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[addr]
	if !ok {
		return nil, false
	}
	return entry.owners, true
}

func (r *MultisigResolver) storeCache(addr common.Address, owners map[common.Address]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[addr] = &ownerSet{owners: owners}
}

func (r *MultisigResolver) fetchFromOracle(ctx context.Context, addr common.Address) (map[common.Address]bool, bool, error) {
	url := fmt.Sprintf("%s/api/v1/safes/%s/", r.baseURL, addr.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("bridge: build safe api request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("bridge: safe api request for %s: %w", addr.Hex(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, false, fmt.Errorf("bridge: safe api returned unexpected status %d for %s", resp.StatusCode, addr.Hex())
	}

	var info safeInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, false, fmt.Errorf("bridge: decode safe api response for %s: %w", addr.Hex(), err)
	}

	owners := make(map[common.Address]bool, len(info.Owners))
	for _, o := range info.Owners {
		owners[common.HexToAddress(o)] = true
	}
	return owners, true, nil
}
