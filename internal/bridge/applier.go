package bridge

import (
	"context"
	"fmt"
)

// KamuNodeApplier wraps the downstream mutation API: it creates wallet
// accounts for every account referenced by a batch of operations, then
// applies the relation operations themselves.
// Both calls are single bulk requests; no sub-batching is performed at
// this layer.
type KamuNodeApplier struct {
	client KamuNodeAPIClient
}

func NewKamuNodeApplier(client KamuNodeAPIClient) *KamuNodeApplier {
	return &KamuNodeApplier{client: client}
}

func (a *KamuNodeApplier) Apply(ctx context.Context, ops []AccountDatasetRelationOperation) error {
	if len(ops) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	dids := make([]string, 0, len(ops))
	for _, op := range ops {
		if seen[op.AccountID] {
			continue
		}
		seen[op.AccountID] = true
		dids = append(dids, op.AccountID)
	}

	if err := a.client.CreateWalletAccounts(ctx, dids); err != nil {
		return fmt.Errorf("bridge: create wallet accounts: %w", err)
	}
	if err := a.client.ApplyAccountDatasetRelations(ctx, ops); err != nil {
		return fmt.Errorf("bridge: apply account dataset relations: %w", err)
	}
	return nil
}
