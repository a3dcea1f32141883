package bridge

import "github.com/ethereum/go-ethereum/common"

// MultisigState tracks the membership history of a single multisig
// address. An owner removed then re-added remains in CurrentOwners and
// may still linger in FormerOwners; the Reconciler's sanity filter
// resolves the overlap (current wins).
type MultisigState struct {
	CurrentOwners map[common.Address]bool
	FormerOwners  map[common.Address]bool
}

func NewMultisigState() *MultisigState {
	return &MultisigState{
		CurrentOwners: make(map[common.Address]bool),
		FormerOwners:  make(map[common.Address]bool),
	}
}

func (m *MultisigState) AddOwner(owner common.Address) {
	m.CurrentOwners[owner] = true
}

func (m *MultisigState) RemoveOwner(owner common.Address) {
	delete(m.CurrentOwners, owner)
	m.FormerOwners[owner] = true
}

// MultisigEntry is one slot of the MultisigMap: nil means "confirmed EOA",
// present-with-state means "confirmed multisig". Absence of the address
// as a key entirely means "not yet probed" and is modeled by the map
// lookup's ok return in AppState, not by this type.
type MultisigEntry struct {
	State *MultisigState // nil => confirmed EOA
}
