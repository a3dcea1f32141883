package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// FileChangeOp is the catalogue change feed's operation kind.
// CorrectFrom/CorrectTo are decoded but ignored (resolved in DESIGN.md:
// left as documented no-ops).
type FileChangeOp int

const (
	FileChangeAppend FileChangeOp = iota
	FileChangeRetract
	FileChangeCorrectFrom
	FileChangeCorrectTo
)

// RawFileChange is one row of the catalogue's per-project file-change feed.
type RawFileChange struct {
	Offset    uint64
	Op        FileChangeOp
	DatasetID string
	Path      string
}

// ChangeKind discriminates the per-dataset change the Syncer folds a
// project's file changes into, consumed by the Reconciler and surfaced
// on the admin audit trail with a richer operator-facing taxonomy.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
	ChangeAccessLevelChanged
)

// ChangedFile is one emitted per-dataset change for an IpnftUid this
// iteration.
type ChangedFile struct {
	DatasetID   string
	Kind        ChangeKind
	Level       AccessLevel // meaningful for ChangeAdded
	FromLevel   AccessLevel // meaningful for ChangeAccessLevelChanged
	ToLevel     AccessLevel // meaningful for ChangeAccessLevelChanged
	AuditKind   string      // richer operator-facing taxonomy for the audit trail
}

// KamuNodeAPIClient is the downstream catalogue + mutation API surface
// the Catalogue Syncer and Applier depend on. It is
// implemented over plain net/http + encoding/json POST calls carrying a
// {query, variables} GraphQL-shaped envelope, following the same
// plain HTTP-client idiom used by the rest of this codebase -- no
// GraphQL client library is used here.
type KamuNodeAPIClient interface {
	// NewProjects returns project-directory rows with offset >=
	// sinceOffset+1, already filtered by the caller's ignore-list.
	NewProjects(ctx context.Context, sinceOffset uint64) ([]ProjectEntry, error)
	// FileChanges returns file-list changes for an existing project from
	// fromOffset+1, or a full scan (fromOffset==0) for a new one.
	FileChanges(ctx context.Context, dataRoomDatasetID string, fromOffset uint64) ([]RawFileChange, error)
	// AccessLevels resolves the latest access level for each dataset id.
	// Datasets with no resolvable level are simply absent from the
	// result.
	AccessLevels(ctx context.Context, datasetIDs []string) (map[string]AccessLevel, error)
	CreateWalletAccounts(ctx context.Context, dids []string) error
	ApplyAccountDatasetRelations(ctx context.Context, ops []AccountDatasetRelationOperation) error
}

// CatalogueSyncer incrementally pulls new project entries and per-project
// file-list changes plus access-level classifications.
type CatalogueSyncer struct {
	client      KamuNodeAPIClient
	ignoreUids  map[IpnftUid]bool
	pullInterval time.Duration
}

func NewCatalogueSyncer(client KamuNodeAPIClient, ignoreUids map[IpnftUid]bool, pullInterval time.Duration) *CatalogueSyncer {
	return &CatalogueSyncer{client: client, ignoreUids: ignoreUids, pullInterval: pullInterval}
}

// ShouldPull reports whether enough time has elapsed since
// lastPullTime to run another catalogue pull, per the
// molecule_projects_loading_interval_in_secs gate.
func (s *CatalogueSyncer) ShouldPull(now, lastPullTime time.Time) bool {
	return lastPullTime.IsZero() || now.Sub(lastPullTime) >= s.pullInterval
}

// Pull runs one catalogue sync pass against state, mutating
// state.ProjectsDatasetOffset and every touched IpnftState.Project in
// place, and returns the per-IpnftUid changed-file sets the Reconciler
// should fold into its change map.
func (s *CatalogueSyncer) Pull(ctx context.Context, state *AppState) (map[IpnftUid][]ChangedFile, error) {
	out := make(map[IpnftUid][]ChangedFile)

	newEntries, err := s.client.NewProjects(ctx, state.ProjectsDatasetOffset)
	if err != nil {
		return nil, fmt.Errorf("bridge: fetch new catalogue projects: %w", err)
	}

	newlyAttached := make(map[IpnftUid]bool)
	for _, entry := range newEntries {
		if s.ignoreUids[entry.IpnftUid] {
			continue
		}
		ipState := state.GetOrCreateIpnftState(entry.IpnftUid)
		ipState.Project = NewProjectProjection(entry)
		newlyAttached[entry.IpnftUid] = true
		if entry.Offset > state.ProjectsDatasetOffset {
			state.ProjectsDatasetOffset = entry.Offset
		}
	}

	for uid, ipState := range state.IpnftStateMap {
		if ipState.Project == nil {
			continue
		}
		var fromOffset uint64
		if !newlyAttached[uid] {
			fromOffset = ipState.Project.LatestDataRoomOffset + 1
		}

		changes, err := s.client.FileChanges(ctx, ipState.Project.Entry.DataRoomDatasetID, fromOffset)
		if err != nil {
			return nil, fmt.Errorf("bridge: fetch file changes for %s: %w", uid, err)
		}
		if len(changes) == 0 {
			continue
		}

		changed, err := s.applyFileChanges(ctx, ipState.Project, changes)
		if err != nil {
			return nil, fmt.Errorf("bridge: apply file changes for %s: %w", uid, err)
		}
		if len(changed) > 0 {
			out[uid] = append(out[uid], changed...)
		}
	}

	return out, nil
}

// applyFileChanges folds raw Append/Retract changes into a project's
// actual/removed file maps, resolves access levels, and detects
// in-place access-level promotions/demotions.6:
// "apply removals..., then additions..., then detect in-place
// access-level changes over files still in actual_files_map".
func (s *CatalogueSyncer) applyFileChanges(ctx context.Context, proj *ProjectProjection, changes []RawFileChange) ([]ChangedFile, error) {
	var maxOffset uint64
	var toAdd []RawFileChange

	for _, c := range changes {
		if c.Offset > maxOffset {
			maxOffset = c.Offset
		}
		switch c.Op {
		case FileChangeRetract:
			if f, ok := proj.ActualFilesMap[c.DatasetID]; ok {
				delete(proj.ActualFilesMap, c.DatasetID)
				proj.RemovedFilesMap[c.DatasetID] = f.Entry
			}
		case FileChangeAppend:
			toAdd = append(toAdd, c)
		case FileChangeCorrectFrom, FileChangeCorrectTo:
			// Ignored: see DESIGN.md's open-question notes.
		}
	}

	var out []ChangedFile

	// Removals surfaced above as part of the fold; emit them now.
	for _, c := range changes {
		if c.Op == FileChangeRetract {
			out = append(out, ChangedFile{DatasetID: c.DatasetID, Kind: ChangeRemoved, AuditKind: "DataRoomEntryRemoved"})
		}
	}

	if len(toAdd) > 0 {
		ids := make([]string, 0, len(toAdd))
		for _, c := range toAdd {
			ids = append(ids, c.DatasetID)
		}
		levels, err := s.client.AccessLevels(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve access levels for new files: %w", err)
		}
		for _, c := range toAdd {
			level, ok := levels[c.DatasetID]
			if !ok {
				log.Printf("[CatalogueSyncer] no access level for new file %s, skipping", c.DatasetID)
				continue
			}
			proj.ActualFilesMap[c.DatasetID] = ActualFile{Entry: FileEntry{DatasetID: c.DatasetID, Path: c.Path}, AccessLevel: level}
			out = append(out, ChangedFile{DatasetID: c.DatasetID, Kind: ChangeAdded, Level: level, AuditKind: "DataRoomEntryAdded"})
		}
	}

	// Detect in-place access-level changes over files still tracked.
	if len(proj.ActualFilesMap) > 0 {
		ids := make([]string, 0, len(proj.ActualFilesMap))
		for id := range proj.ActualFilesMap {
			ids = append(ids, id)
		}
		levels, err := s.client.AccessLevels(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve access levels for tracked files: %w", err)
		}
		for id, file := range proj.ActualFilesMap {
			newLevel, ok := levels[id]
			if !ok || newLevel == file.AccessLevel {
				continue
			}
			out = append(out, ChangedFile{DatasetID: id, Kind: ChangeAccessLevelChanged, FromLevel: file.AccessLevel, ToLevel: newLevel, AuditKind: "FileUpdated"})
			file.AccessLevel = newLevel
			proj.ActualFilesMap[id] = file
		}
	}

	if maxOffset > proj.LatestDataRoomOffset {
		proj.LatestDataRoomOffset = maxOffset
	}

	return out, nil
}

// httpKamuNodeClient is the net/http + encoding/json implementation of
// KamuNodeAPIClient, modeled on internal/market/price.go
// HTTP-client idiom (stdlib client, explicit timeout, explicit
// status-code range check).
type httpKamuNodeClient struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewHTTPKamuNodeClient(endpoint, token string) KamuNodeAPIClient {
	return &httpKamuNodeClient{
		endpoint:   endpoint,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type gqlEnvelope struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

func (c *httpKamuNodeClient) post(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(gqlEnvelope{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("bridge: marshal kamu node request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bridge: build kamu node request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: kamu node request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bridge: kamu node returned unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("bridge: decode kamu node response: %w", err)
	}
	return nil
}

func (c *httpKamuNodeClient) NewProjects(ctx context.Context, sinceOffset uint64) ([]ProjectEntry, error) {
	var resp struct {
		Data struct {
			Projects []ProjectEntry `json:"projects"`
		} `json:"data"`
	}
	err := c.post(ctx, projectsQuery, map[string]interface{}{"sinceOffset": sinceOffset}, &resp)
	return resp.Data.Projects, err
}

func (c *httpKamuNodeClient) FileChanges(ctx context.Context, dataRoomDatasetID string, fromOffset uint64) ([]RawFileChange, error) {
	var resp struct {
		Data struct {
			Changes []RawFileChange `json:"changes"`
		} `json:"data"`
	}
	err := c.post(ctx, fileChangesQuery, map[string]interface{}{"datasetId": dataRoomDatasetID, "fromOffset": fromOffset}, &resp)
	return resp.Data.Changes, err
}

func (c *httpKamuNodeClient) AccessLevels(ctx context.Context, datasetIDs []string) (map[string]AccessLevel, error) {
	var resp struct {
		Data struct {
			Levels map[string]AccessLevel `json:"levels"`
		} `json:"data"`
	}
	err := c.post(ctx, accessLevelsQuery, map[string]interface{}{"datasetIds": datasetIDs}, &resp)
	return resp.Data.Levels, err
}

func (c *httpKamuNodeClient) CreateWalletAccounts(ctx context.Context, dids []string) error {
	return c.post(ctx, createWalletAccountsMutation, map[string]interface{}{"dids": dids}, nil)
}

func (c *httpKamuNodeClient) ApplyAccountDatasetRelations(ctx context.Context, ops []AccountDatasetRelationOperation) error {
	encoded := make([]map[string]interface{}, 0, len(ops))
	for _, op := range ops {
		entry := map[string]interface{}{"accountId": op.AccountID, "datasetId": op.DatasetID}
		if op.Operation == OperationSet {
			entry["operation"] = "Set"
			entry["role"] = op.Role.String()
		} else {
			entry["operation"] = "Unset"
		}
		encoded = append(encoded, entry)
	}
	return c.post(ctx, applyRelationsMutation, map[string]interface{}{"operations": encoded}, nil)
}

const (
	projectsQuery = `query($sinceOffset: Int!) {
		projects: molecule_projects_view(where: {offset: {_gte: $sinceOffset}}) {
			offset ipnft_uid symbol project_account_id data_room_dataset_id announcements_dataset_id
		}
	}`
	fileChangesQuery = `query($datasetId: String!, $fromOffset: Int!) {
		changes: data_room_changes(dataset_id: $datasetId, from_offset: $fromOffset) {
			offset op dataset_id path
		}
	}`
	accessLevelsQuery = `query($datasetIds: [String!]!) {
		levels: latest_access_levels(dataset_ids: $datasetIds)
	}`
	createWalletAccountsMutation  = `mutation($dids: [String!]!) { createWalletAccounts(dids: $dids) }`
	applyRelationsMutation        = `mutation($operations: [AccountDatasetRelationOperationInput!]!) { applyAccountDatasetRelations(operations: $operations) }`
)
