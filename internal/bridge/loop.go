package bridge

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// ChainClient is the RPC surface the Loop Controller needs beyond log
// fetching and code-at checks: the finalized-block watermark. Satisfied
// by *ethclient.Client.
type ChainClient interface {
	LogSource
	ContractCodeSource
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Config is the Loop Controller's static configuration.
type Config struct {
	ChainID                  uint64
	IpnftContractAddress     common.Address
	IpnftContractBirthBlock  uint64
	TokenizerContractAddress common.Address
	TokenizerBirthBlock      uint64
	CataloguePullInterval    time.Duration
	IterationDelay           time.Duration
	IgnoreProjectUids        map[IpnftUid]bool
}

// LoopController drives initialization and periodic iterations. It ties
// together every other bridge component.
type LoopController struct {
	cfg      Config
	chain    ChainClient
	fetcher  *LogFetcher
	resolver *MultisigResolver
	msIndex  *MultisigIndexer
	ipnftP   *IPNFTProjector
	tokenizerP *TokenizerProjector
	transferP  *TokenTransferProjector
	syncer     *CatalogueSyncer
	reconciler *Reconciler
	state      *AppState
}

func NewLoopController(cfg Config, chain ChainClient, resolver *MultisigResolver, syncer *CatalogueSyncer, applier Applier, state *AppState) *LoopController {
	fetcher := NewLogFetcher(chain)
	codeSource := func(ctx context.Context, addr common.Address) ([]byte, error) {
		return chain.CodeAt(ctx, addr, nil)
	}
	return &LoopController{
		cfg:        cfg,
		chain:      chain,
		fetcher:    fetcher,
		resolver:   resolver,
		msIndex:    NewMultisigIndexer(fetcher, resolver),
		ipnftP:     NewIPNFTProjector(),
		tokenizerP: NewTokenizerProjector(),
		transferP:  NewTokenTransferProjector(),
		syncer:     syncer,
		reconciler: NewReconciler(resolver, applier, cfg.ChainID, codeSource),
		state:      state,
	}
}

// latestFinalizedBlock asks the chain client for the most recent
// irreversible block.
func (lc *LoopController) latestFinalizedBlock(ctx context.Context) (uint64, error) {
	header, err := lc.chain.HeaderByNumber(ctx, big.NewInt(rpc.FinalizedBlockNumber.Int64()))
	if err != nil {
		return 0, fmt.Errorf("bridge: fetch finalized block header: %w", err)
	}
	return header.Number.Uint64(), nil
}

// Init runs the bootstrap phase: full indexing from the earlier of the
// two contracts' birth blocks through the latest finalized block, one
// catalogue pull, then applies the entire current access picture.
func (lc *LoopController) Init(ctx context.Context) error {
	finalized, err := lc.latestFinalizedBlock(ctx)
	if err != nil {
		return err
	}

	seed := lc.cfg.IpnftContractBirthBlock
	if lc.cfg.TokenizerBirthBlock < seed {
		seed = lc.cfg.TokenizerBirthBlock
	}

	changes, err := lc.indexing(ctx, seed, finalized)
	if err != nil {
		return fmt.Errorf("bridge: init indexing: %w", err)
	}

	fileChanges, err := lc.syncer.Pull(ctx, lc.state)
	if err != nil {
		return fmt.Errorf("bridge: init catalogue pull: %w", err)
	}
	lc.state.LastCataloguePullTime = time.Now()
	mergeFileChanges(changes, fileChanges)

	lc.state.LatestIndexedBlock = finalized
	lc.state.TokensLatestIndexedBlock = finalized

	// initial_access_applying: compute from the FULL current state for
	// every IPNFT with an attached project, not just this batch's delta.
	full := lc.fullCurrentStateChanges()
	mergeIpnftChanges(changes, full)

	return lc.reconciler.ReconcileAll(ctx, lc.state, changes, "init", time.Now())
}

// RunUpdateLoop runs the update phase on a ticker until ctx is cancelled.
func (lc *LoopController) RunUpdateLoop(ctx context.Context) error {
	ticker := time.NewTicker(lc.cfg.IterationDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := lc.update(ctx); err != nil {
				log.Printf("[LoopController] iteration failed, will retry from block %d: %v", lc.state.LatestIndexedBlock+1, err)
			}
		}
	}
}

// TriggerIteration runs a single update iteration immediately, outside the
// RunUpdateLoop ticker. Used by the admin trigger-iteration endpoint.
func (lc *LoopController) TriggerIteration(ctx context.Context) error {
	return lc.update(ctx)
}

func (lc *LoopController) update(ctx context.Context) error {
	finalized, err := lc.latestFinalizedBlock(ctx)
	if err != nil {
		return err
	}
	if finalized <= lc.state.LatestIndexedBlock+1 {
		return nil // no progress possible
	}

	from := lc.state.LatestIndexedBlock + 1
	changes, err := lc.indexing(ctx, from, finalized)
	if err != nil {
		return fmt.Errorf("bridge: update indexing [%d,%d]: %w", from, finalized, err)
	}
	lc.state.LatestIndexedBlock = finalized
	lc.state.TokensLatestIndexedBlock = finalized

	now := time.Now()
	if lc.syncer.ShouldPull(now, lc.state.LastCataloguePullTime) {
		fileChanges, err := lc.syncer.Pull(ctx, lc.state)
		if err != nil {
			return fmt.Errorf("bridge: update catalogue pull: %w", err)
		}
		lc.state.LastCataloguePullTime = now
		mergeFileChanges(changes, fileChanges)
	}

	return lc.reconciler.ReconcileAll(ctx, lc.state, changes, "update", now)
}

// indexing runs the strict index_ipnft+tokenizer -> index_multisigs ->
// index_tokens sequence over [from, to] and assembles the per-IpnftUid
// change map the Reconciler consumes.
func (lc *LoopController) indexing(ctx context.Context, from, to uint64) (map[IpnftUid]IpnftChanges, error) {
	changes := make(map[IpnftUid]IpnftChanges)
	if from > to {
		return changes, nil
	}

	if err := lc.indexIpnftAndTokenizer(ctx, from, to, changes); err != nil {
		return nil, err
	}
	if err := lc.indexMultisigs(ctx, from, to, changes); err != nil {
		return nil, err
	}
	if err := lc.indexTokenTransfers(ctx, from, to, changes); err != nil {
		return nil, err
	}
	return changes, nil
}

func (lc *LoopController) indexIpnftAndTokenizer(ctx context.Context, from, to uint64, changes map[IpnftUid]IpnftChanges) error {
	addresses := []common.Address{lc.cfg.IpnftContractAddress, lc.cfg.TokenizerContractAddress}
	topics := [][]common.Hash{{ipnftMintedTopic0, transferTopic0, tokensCreatedTopic0, moleculesCreatedTopic0}}

	var ipnftEvents []IpnftEvent
	var tokenCreated []TokenCreatedEvent

	err := lc.fetcher.Fetch(ctx, addresses, topics, from, to, func(chunk LogsChunk) error {
		for _, l := range chunk.Logs {
			switch l.Address {
			case lc.cfg.IpnftContractAddress:
				ev, err := DecodeIpnftLog(l)
				if err != nil {
					return fmt.Errorf("decode ipnft log: %w", err)
				}
				ipnftEvents = append(ipnftEvents, ev)
			case lc.cfg.TokenizerContractAddress:
				ev, err := DecodeTokenCreatedLog(l)
				if err != nil {
					return fmt.Errorf("decode tokenizer log: %w", err)
				}
				tokenCreated = append(tokenCreated, ev)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bridge: fetch ipnft+tokenizer logs: %w", err)
	}

	batches := lc.ipnftP.ProjectBatch(ipnftEvents)
	for uid, batch := range batches {
		ipState := lc.state.GetOrCreateIpnftState(uid)
		if err := lc.ipnftP.MergeInto(&ipState.Ipnft, batch); err != nil {
			return fmt.Errorf("bridge: merge ipnft projection for %s: %w", uid, err)
		}
		c := changes[uid]
		c.MintedAndBurnt = batch.Minted && batch.Burnt
		if batch.HasOwner {
			c.OwnerChange.HasCurrent = true
			c.OwnerChange.Current = batch.CurrentOwner
		}
		if batch.HasFormer {
			c.OwnerChange.HasFormer = true
			c.OwnerChange.Former = batch.FormerOwner
		}
		changes[uid] = c
	}

	// Tokenizer events must be fetched in the same sweep as IPNFT events
	// so a TokenCreated racing an as-yet-unindexed Minted can still match
	// within this very batch.
	lc.tokenizerP.ProjectBatch(lc.state, tokenCreated)
	return nil
}

func (lc *LoopController) indexMultisigs(ctx context.Context, from, to uint64, changes map[IpnftUid]IpnftChanges) error {
	candidates := lc.candidateMultisigAddresses()
	codeSource := func(ctx context.Context, addr common.Address) ([]byte, error) {
		return lc.chain.CodeAt(ctx, addr, nil)
	}
	if err := lc.msIndex.ProbeNewAddresses(ctx, lc.state, candidates, to, codeSource); err != nil {
		return err
	}

	changed, err := lc.msIndex.IndexIteration(ctx, lc.state, from, to)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	// IPNFT-multisig linkage: re-evaluate every IPNFT whose current owner
	// is a multisig that changed membership this window, even absent a
	// direct IPNFT event.
	for uid, ipState := range lc.state.IpnftStateMap {
		if !ipState.Ipnft.HasOwner || !changed[ipState.Ipnft.CurrentOwner] {
			continue
		}
		c := changes[uid]
		c.OwnerChange.HasCurrent = true
		c.OwnerChange.Current = ipState.Ipnft.CurrentOwner
		changes[uid] = c
	}
	return nil
}

// candidateMultisigAddresses collects every owner address worth probing:
// current and former owners of every tracked IPNFT.
func (lc *LoopController) candidateMultisigAddresses() []common.Address {
	seen := map[common.Address]bool{}
	var out []common.Address
	add := func(a common.Address) {
		if a == (common.Address{}) || seen[a] {
			return
		}
		seen[a] = true
		out = append(out, a)
	}
	for _, st := range lc.state.IpnftStateMap {
		if st.Ipnft.HasOwner {
			add(st.Ipnft.CurrentOwner)
		}
		if st.Ipnft.HasFormer {
			add(st.Ipnft.FormerOwner)
		}
	}
	return out
}

func (lc *LoopController) indexTokenTransfers(ctx context.Context, from, to uint64, changes map[IpnftUid]IpnftChanges) error {
	var addresses []common.Address
	for tokenAddr := range lc.state.TokenAddressToIpnftUid {
		addresses = append(addresses, tokenAddr)
	}
	if len(addresses) == 0 {
		return nil
	}

	var events []TokenTransferEvent
	err := lc.fetcher.Fetch(ctx, addresses, FractionalTokenTransferTopics(), from, to, func(chunk LogsChunk) error {
		for _, l := range chunk.Logs {
			ev, err := DecodeFractionalTokenTransferLog(l)
			if err != nil {
				log.Printf("[LoopController] skip undecodable token transfer log on %s: %v", l.Address.Hex(), err)
				continue
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bridge: fetch token transfer logs: %w", err)
	}

	deltas, err := lc.transferP.ProjectBatch(lc.state, events)
	if err != nil {
		return fmt.Errorf("bridge: project token transfers: %w", err)
	}
	for uid, balances := range deltas {
		c := changes[uid]
		if c.HolderBalanceChanges == nil {
			c.HolderBalanceChanges = map[common.Address]*big.Int{}
		}
		for addr, bal := range balances {
			c.HolderBalanceChanges[addr] = bal
		}
		changes[uid] = c
	}
	return nil
}

// fullCurrentStateChanges builds a change map that forces the Reconciler
// to compute operations from each project-attached IPNFT's full current
// state, used by Init's bootstrap "installs the entire access picture".
func (lc *LoopController) fullCurrentStateChanges() map[IpnftUid]IpnftChanges {
	out := make(map[IpnftUid]IpnftChanges)
	for uid, st := range lc.state.IpnftStateMap {
		if st.Project == nil {
			continue
		}
		c := IpnftChanges{}
		if st.Ipnft.HasOwner {
			c.OwnerChange.HasCurrent = true
			c.OwnerChange.Current = st.Ipnft.CurrentOwner
		}
		if st.Token != nil {
			c.HolderBalanceChanges = map[common.Address]*big.Int{}
			for addr, bal := range st.Token.HolderBalances {
				c.HolderBalanceChanges[addr] = bal
			}
		}
		out[uid] = c
	}
	return out
}

func mergeFileChanges(changes map[IpnftUid]IpnftChanges, fileChanges map[IpnftUid][]ChangedFile) {
	for uid, files := range fileChanges {
		c := changes[uid]
		c.ChangedFiles = append(c.ChangedFiles, files...)
		changes[uid] = c
	}
}

func mergeIpnftChanges(dst, src map[IpnftUid]IpnftChanges) {
	for uid, c := range src {
		existing, ok := dst[uid]
		if !ok {
			dst[uid] = c
			continue
		}
		if c.OwnerChange.HasCurrent {
			existing.OwnerChange.HasCurrent = true
			existing.OwnerChange.Current = c.OwnerChange.Current
		}
		if c.OwnerChange.HasFormer {
			existing.OwnerChange.HasFormer = true
			existing.OwnerChange.Former = c.OwnerChange.Former
		}
		if len(c.HolderBalanceChanges) > 0 {
			if existing.HolderBalanceChanges == nil {
				existing.HolderBalanceChanges = map[common.Address]*big.Int{}
			}
			for addr, bal := range c.HolderBalanceChanges {
				existing.HolderBalanceChanges[addr] = bal
			}
		}
		existing.ChangedFiles = append(existing.ChangedFiles, c.ChangedFiles...)
		dst[uid] = existing
	}
}
