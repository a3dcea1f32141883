package bridge

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// IPTAccessThreshold is the minimum fractional-token balance (exclusive)
// that grants reader access. Currently 0: any positive balance qualifies.
var IPTAccessThreshold = big.NewInt(0)

// OwnerChange is the per-iteration owner-transition input for one
// IpnftUid, mirroring IpnftProjection's current/former owner slots.
type OwnerChange struct {
	HasFormer bool
	Former    common.Address
	HasCurrent bool
	Current   common.Address
}

// IpnftChanges is the Reconciler's per-IpnftUid input, assembled by the
// Loop Controller from the iteration's projector outputs.
type IpnftChanges struct {
	MintedAndBurnt       bool
	OwnerChange          OwnerChange
	HolderBalanceChanges map[common.Address]*big.Int
	ChangedFiles         []ChangedFile
}

// Applier is the downstream mutation surface the Reconciler hands its
// operations to.
type Applier interface {
	Apply(ctx context.Context, ops []AccountDatasetRelationOperation) error
}

// addressSet resolves a blockchain address via the Multisig Resolver,
// the Reconciler's sole interaction with on-chain membership state.
type addressSet map[common.Address]bool

// Reconciler is the engine core: it turns per-IpnftUid changes into
// (account, dataset, role) operations and hands them to the Applier.
type Reconciler struct {
	resolver *MultisigResolver
	applier  Applier
	chainID  uint64
	codeSource func(context.Context, common.Address) ([]byte, error)
}

func NewReconciler(resolver *MultisigResolver, applier Applier, chainID uint64, codeSource func(context.Context, common.Address) ([]byte, error)) *Reconciler {
	return &Reconciler{resolver: resolver, applier: applier, chainID: chainID, codeSource: codeSource}
}

// ReconcileAll processes every IpnftUid in changesMap in turn, recording
// an audit entry and calling the Applier for each one that produces
// operations.
func (r *Reconciler) ReconcileAll(ctx context.Context, state *AppState, changesMap map[IpnftUid]IpnftChanges, reason string, now time.Time) error {
	for uid, changes := range changesMap {
		ops, err := r.reconcileOne(ctx, state, uid, changes)
		if err != nil {
			return fmt.Errorf("bridge: reconcile %s: %w", uid, err)
		}
		if len(ops) == 0 {
			continue
		}
		state.RecordAudit(now, AuditEntry{Reason: reason, Operations: ops})
		if err := r.applier.Apply(ctx, ops); err != nil {
			return fmt.Errorf("bridge: apply operations for %s: %w", uid, err)
		}
		// Distinct timestamps per uid avoid overwriting the audit map
		// entry within a tight loop.
		now = now.Add(time.Nanosecond)
	}
	return nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, state *AppState, uid IpnftUid, changes IpnftChanges) ([]AccountDatasetRelationOperation, error) {
	if changes.MintedAndBurnt {
		return nil, nil
	}
	ipState, ok := state.IpnftStateMap[uid]
	if !ok || ipState.Project == nil {
		return nil, nil
	}

	currentOwners := addressSet{}
	holders := addressSet{}
	revoke := addressSet{}

	if changes.OwnerChange.HasCurrent {
		fanned, err := r.fanOut(ctx, state, changes.OwnerChange.Current)
		if err != nil {
			return nil, err
		}
		mergeInto(currentOwners, fanned)

		// "plus former members of the current multisig (members that
		// left during this window)" -- MultisigState.FormerOwners
		// accumulates historically; the sanity filter below protects
		// anyone who is still a current owner.
		if entry, known := state.MultisigMap[changes.OwnerChange.Current]; known && entry.State != nil {
			for addr := range entry.State.FormerOwners {
				revoke[addr] = true
			}
		}
	}
	if changes.OwnerChange.HasFormer {
		fanned, err := r.fanOutAllMembers(ctx, state, changes.OwnerChange.Former)
		if err != nil {
			return nil, err
		}
		mergeInto(revoke, fanned)
	}

	for addr, bal := range changes.HolderBalanceChanges {
		if bal.Cmp(IPTAccessThreshold) > 0 {
			holders[addr] = true
		} else {
			revoke[addr] = true
		}
	}

	// Sanity filter: current owners win over holder/revoke; holders win
	// over revoke.
	for a := range currentOwners {
		delete(holders, a)
		delete(revoke, a)
	}
	for a := range holders {
		delete(revoke, a)
	}

	ownerDids, err := toDids(r.chainID, currentOwners)
	if err != nil {
		return nil, err
	}
	holderDids, err := toDids(r.chainID, holders)
	if err != nil {
		return nil, err
	}
	revokeDids, err := toDids(r.chainID, revoke)
	if err != nil {
		return nil, err
	}

	var ops []AccountDatasetRelationOperation

	proj := ipState.Project
	coreDatasets := []string{proj.Entry.DataRoomDatasetID, proj.Entry.AnnouncementsDatasetID}
	for _, d := range coreDatasets {
		ops = append(ops, setOps(ownerDids, d, RoleMaintainer)...)
		ops = append(ops, setOps(holderDids, d, RoleReader)...)
		ops = append(ops, unsetOps(revokeDids, d)...)
	}

	for id, f := range proj.ActualFilesMap {
		if f.AccessLevel.IsHolderReadable() {
			ops = append(ops, setOps(ownerDids, id, RoleMaintainer)...)
			ops = append(ops, setOps(holderDids, id, RoleReader)...)
			ops = append(ops, unsetOps(revokeDids, id)...)
		} else {
			// owner_datasets: owners only. Holders/revoke get no
			// operation at all here -- the resolved open question in
			// DESIGN.md treats this wording as authoritative over the
			// reference prototype's broader revoke behavior.
			ops = append(ops, setOps(ownerDids, id, RoleMaintainer)...)
		}
	}

	for id := range proj.RemovedFilesMap {
		everyone := append(append(append([]DidPkh{}, ownerDids...), holderDids...), revokeDids...)
		ops = append(ops, unsetOps(everyone, id)...)
	}

	if len(changes.ChangedFiles) > 0 {
		extra, err := r.fullPictureOpsForChangedFiles(ctx, state, ipState, changes.ChangedFiles)
		if err != nil {
			return nil, err
		}
		ops = append(ops, extra...)
	}

	return ops, nil
}

// fullPictureOpsForChangedFiles handles newly-added or promoted files: they
// must grant access to every existing owner/holder, not just the accounts
// whose classification changed this iteration.
func (r *Reconciler) fullPictureOpsForChangedFiles(ctx context.Context, state *AppState, ipState *IpnftState, changed []ChangedFile) ([]AccountDatasetRelationOperation, error) {
	ownersAll, holdersAll, err := r.fullAccountPicture(ctx, state, ipState)
	if err != nil {
		return nil, err
	}
	ownerDids, err := toDids(r.chainID, ownersAll)
	if err != nil {
		return nil, err
	}
	holderDids, err := toDids(r.chainID, holdersAll)
	if err != nil {
		return nil, err
	}

	var ops []AccountDatasetRelationOperation
	for _, cf := range changed {
		switch cf.Kind {
		case ChangeRemoved:
			everyone := append(append([]DidPkh{}, ownerDids...), holderDids...)
			ops = append(ops, unsetOps(everyone, cf.DatasetID)...)
		case ChangeAdded:
			ops = append(ops, fullPictureOpsForLevel(ownerDids, holderDids, cf.DatasetID, cf.Level)...)
		case ChangeAccessLevelChanged:
			ops = append(ops, fullPictureOpsForLevel(ownerDids, holderDids, cf.DatasetID, cf.ToLevel)...)
		}
	}
	return ops, nil
}

func fullPictureOpsForLevel(ownerDids, holderDids []DidPkh, datasetID string, level AccessLevel) []AccountDatasetRelationOperation {
	var ops []AccountDatasetRelationOperation
	ops = append(ops, setOps(ownerDids, datasetID, RoleMaintainer)...)
	if level.IsHolderReadable() {
		ops = append(ops, setOps(holderDids, datasetID, RoleReader)...)
	}
	return ops
}

// fullAccountPicture enumerates all owners+holders from the current
// IpnftState, not just this iteration's delta.
func (r *Reconciler) fullAccountPicture(ctx context.Context, state *AppState, ipState *IpnftState) (addressSet, addressSet, error) {
	owners := addressSet{}
	if ipState.Ipnft.HasOwner {
		fanned, err := r.fanOut(ctx, state, ipState.Ipnft.CurrentOwner)
		if err != nil {
			return nil, nil, err
		}
		mergeInto(owners, fanned)
	}
	holders := addressSet{}
	if ipState.Token != nil {
		for addr, bal := range ipState.Token.HolderBalances {
			if bal.Cmp(IPTAccessThreshold) > 0 {
				holders[addr] = true
			}
		}
	}
	for a := range owners {
		delete(holders, a)
	}
	return owners, holders, nil
}

// fanOut resolves addr's current membership: itself if an EOA, or its
// current multisig members (first level only -- nested multisigs are not
// fanned out).
func (r *Reconciler) fanOut(ctx context.Context, state *AppState, addr common.Address) (addressSet, error) {
	owners, isMultisig, err := r.resolveWithCache(ctx, state, addr)
	if err != nil {
		return nil, err
	}
	if !isMultisig {
		return addressSet{addr: true}, nil
	}
	out := addressSet{}
	for o := range owners {
		out[o] = true
	}
	return out, nil
}

// fanOutAllMembers resolves addr's full candidate set when it is being
// revoked: itself if an EOA, or the union of current and former members
// if a multisig -- both current and former members of the former-owner
// address are revoked when it is a multisig.
func (r *Reconciler) fanOutAllMembers(ctx context.Context, state *AppState, addr common.Address) (addressSet, error) {
	if entry, known := state.MultisigMap[addr]; known && entry.State != nil {
		out := addressSet{}
		for o := range entry.State.CurrentOwners {
			out[o] = true
		}
		for o := range entry.State.FormerOwners {
			out[o] = true
		}
		return out, nil
	}
	owners, isMultisig, err := r.resolveWithCache(ctx, state, addr)
	if err != nil {
		return nil, err
	}
	if !isMultisig {
		return addressSet{addr: true}, nil
	}
	out := addressSet{}
	for o := range owners {
		out[o] = true
	}
	return out, nil
}

func (r *Reconciler) resolveWithCache(ctx context.Context, state *AppState, addr common.Address) (map[common.Address]bool, bool, error) {
	if entry, known := state.MultisigMap[addr]; known {
		if entry.State == nil {
			return nil, false, nil
		}
		owners := make(map[common.Address]bool, len(entry.State.CurrentOwners))
		for o := range entry.State.CurrentOwners {
			owners[o] = true
		}
		return owners, true, nil
	}
	owners, isMultisig, err := r.resolver.Resolve(ctx, addr, r.codeSource)
	if err != nil {
		return nil, false, err
	}
	if isMultisig {
		ms := NewMultisigState()
		for o := range owners {
			ms.CurrentOwners[o] = true
		}
		state.MultisigMap[addr] = &MultisigEntry{State: ms}
	} else {
		state.MultisigMap[addr] = &MultisigEntry{State: nil}
	}
	return owners, isMultisig, nil
}

func mergeInto(dst, src addressSet) {
	for a := range src {
		dst[a] = true
	}
}

func toDids(chainID uint64, addrs addressSet) ([]DidPkh, error) {
	out := make([]DidPkh, 0, len(addrs))
	for a := range addrs {
		did, err := NewDidPkh(chainID, a)
		if err != nil {
			return nil, err
		}
		out = append(out, did)
	}
	return out, nil
}

func setOps(dids []DidPkh, datasetID string, role Role) []AccountDatasetRelationOperation {
	out := make([]AccountDatasetRelationOperation, 0, len(dids))
	for _, d := range dids {
		out = append(out, AccountDatasetRelationOperation{AccountID: d.String(), Operation: OperationSet, Role: role, DatasetID: datasetID})
	}
	return out
}

func unsetOps(dids []DidPkh, datasetID string) []AccountDatasetRelationOperation {
	out := make([]AccountDatasetRelationOperation, 0, len(dids))
	for _, d := range dids {
		out = append(out, AccountDatasetRelationOperation{AccountID: d.String(), Operation: OperationUnset, DatasetID: datasetID})
	}
	return out
}
