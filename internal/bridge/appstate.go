package bridge

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AuditEntry is one append-only record of "what did the bridge do and why".
type AuditEntry struct {
	Reason     string
	Operations []AccountDatasetRelationOperation
	// Kind supplements Reason with the richer catalogue-change taxonomy
	// surfaced by the admin audit stream; empty for operations not tied
	// to a single file change.
	Kind string
}

// AppState is the process-singleton aggregate of all reconciliation-engine
// state, guarded by a single reader-writer lock. There is no durable
// persistence: a restart starts init() over from genesis.
type AppState struct {
	mu sync.RWMutex

	ProjectsDatasetOffset   uint64
	IpnftStateMap           map[IpnftUid]*IpnftState
	LatestIndexedBlock      uint64
	TokenAddressToIpnftUid  map[common.Address]IpnftUid
	TokensLatestIndexedBlock uint64
	LastCataloguePullTime   time.Time
	MultisigMap             map[common.Address]*MultisigEntry
	AccessChangesAudit      map[time.Time]AuditEntry

	// OnAudit, if set, is invoked with every entry RecordAudit appends.
	// Used to fan audit entries out to the admin event stream without
	// giving the engine a direct dependency on the transport layer.
	OnAudit func(AuditEntry)
}

func NewAppState() *AppState {
	return &AppState{
		IpnftStateMap:          make(map[IpnftUid]*IpnftState),
		TokenAddressToIpnftUid: make(map[common.Address]IpnftUid),
		MultisigMap:            make(map[common.Address]*MultisigEntry),
		AccessChangesAudit:     make(map[time.Time]AuditEntry),
	}
}

// WithReadLock runs fn while holding the read lock. Used by the admin
// surface to serialize diagnostic JSON without racing the engine's
// in-progress iteration.
func (s *AppState) WithReadLock(fn func(*AppState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s)
}

// WithWriteLock runs fn while holding the write lock for the duration of
// one iteration. The engine is the sole writer.
func (s *AppState) WithWriteLock(fn func(*AppState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// GetOrCreateIpnftState returns the IpnftState for uid, creating an empty
// one on first observation. Callers must hold the write lock.
func (s *AppState) GetOrCreateIpnftState(uid IpnftUid) *IpnftState {
	st, ok := s.IpnftStateMap[uid]
	if !ok {
		st = NewIpnftState()
		s.IpnftStateMap[uid] = st
	}
	return st
}

// FindIpnftByTokenIDAndSymbol locates the IpnftState whose uid's token id
// matches tokenID and whose projection symbol matches symbol. Used by the
// Tokenizer Event Projector. Callers must hold at
// least the read lock.
func (s *AppState) FindIpnftByTokenIDAndSymbol(tokenID IpnftUid, symbol string) (IpnftUid, *IpnftState, bool) {
	for uid, st := range s.IpnftStateMap {
		if uid.TokenID.Cmp(tokenID.TokenID) == 0 && st.Ipnft.HasSymbol && st.Ipnft.Symbol == symbol {
			return uid, st, true
		}
	}
	return IpnftUid{}, nil, false
}

// RecordAudit appends an entry to the audit log under the given
// timestamp. Callers must hold the write lock.
func (s *AppState) RecordAudit(at time.Time, entry AuditEntry) {
	s.AccessChangesAudit[at] = entry
	if s.OnAudit != nil {
		s.OnAudit(entry)
	}
}
