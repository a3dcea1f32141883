package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"ipnft-bridge/internal/bridge"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "build": BuildCommit})
}

type ipnftStateSnapshot struct {
	Uid                string `json:"uid"`
	HasOwner           bool   `json:"has_owner"`
	CurrentOwner       string `json:"current_owner,omitempty"`
	HasProject         bool   `json:"has_project"`
	HasToken           bool   `json:"has_token"`
	HolderCount        int    `json:"holder_count,omitempty"`
}

type stateSnapshot struct {
	ProjectsDatasetOffset    uint64                `json:"projects_dataset_offset"`
	LatestIndexedBlock       uint64                `json:"latest_indexed_block"`
	TokensLatestIndexedBlock uint64                `json:"tokens_latest_indexed_block"`
	LastCataloguePullTime    time.Time             `json:"last_catalogue_pull_time"`
	MultisigCount            int                   `json:"multisig_count"`
	Ipnfts                   []ipnftStateSnapshot  `json:"ipnfts"`
}

// handleState dumps a JSON snapshot of the engine's in-memory state,
// taken under the read lock so it never races an in-progress iteration.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	var snap stateSnapshot
	s.state.WithReadLock(func(st *bridge.AppState) {
		snap.ProjectsDatasetOffset = st.ProjectsDatasetOffset
		snap.LatestIndexedBlock = st.LatestIndexedBlock
		snap.TokensLatestIndexedBlock = st.TokensLatestIndexedBlock
		snap.LastCataloguePullTime = st.LastCataloguePullTime
		snap.MultisigCount = len(st.MultisigMap)
		for uid, ipState := range st.IpnftStateMap {
			s := ipnftStateSnapshot{
				Uid:        uid.String(),
				HasOwner:   ipState.Ipnft.HasOwner,
				HasProject: ipState.Project != nil,
				HasToken:   ipState.Token != nil,
			}
			if ipState.Ipnft.HasOwner {
				s.CurrentOwner = ipState.Ipnft.CurrentOwner.Hex()
			}
			if ipState.Token != nil {
				s.HolderCount = len(ipState.Token.HolderBalances)
			}
			snap.Ipnfts = append(snap.Ipnfts, s)
		}
	})
	writeJSON(w, http.StatusOK, snap)
}

// handleTriggerIteration runs one update iteration synchronously and
// reports whether it succeeded. Bounded by a generous timeout since a
// full sweep can touch many blocks.
func (s *Server) handleTriggerIteration(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if err := s.loop.TriggerIteration(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type auditEntryView struct {
	OccurredAt time.Time             `json:"occurred_at"`
	Reason     string                `json:"reason"`
	Kind       string                `json:"kind,omitempty"`
	OpCount    int                   `json:"op_count"`
}

// handleAudit returns the most recent audit entries, newest first.
// Bounded by a ?limit= query param, default 100.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var entries []auditEntryView
	s.state.WithReadLock(func(st *bridge.AppState) {
		for at, entry := range st.AccessChangesAudit {
			entries = append(entries, auditEntryView{
				OccurredAt: at,
				Reason:     entry.Reason,
				Kind:       entry.Kind,
				OpCount:    len(entry.Operations),
			})
		}
	})

	sort.Slice(entries, func(i, j int) bool { return entries[i].OccurredAt.After(entries[j].OccurredAt) })
	if len(entries) > limit {
		entries = entries[:limit]
	}

	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
