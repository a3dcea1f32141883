package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKamuNodeApplier_Apply_DeduplicatesAccountsBeforeCreating(t *testing.T) {
	client := &fakeKamuNodeAPIClient{}
	applier := NewKamuNodeApplier(client)

	ops := []AccountDatasetRelationOperation{
		{AccountID: "did:pkh:eip155:1:0xAAA", Operation: OperationSet, Role: RoleReader, DatasetID: "ds1"},
		{AccountID: "did:pkh:eip155:1:0xAAA", Operation: OperationSet, Role: RoleReader, DatasetID: "ds2"},
		{AccountID: "did:pkh:eip155:1:0xBBB", Operation: OperationUnset, DatasetID: "ds1"},
	}
	require.NoError(t, applier.Apply(context.Background(), ops))
	assert.ElementsMatch(t, []string{"did:pkh:eip155:1:0xAAA", "did:pkh:eip155:1:0xBBB"}, client.createdAccounts)
	assert.Equal(t, ops, client.appliedOps)
}

func TestKamuNodeApplier_Apply_EmptyOpsIsNoop(t *testing.T) {
	client := &fakeKamuNodeAPIClient{}
	applier := NewKamuNodeApplier(client)
	require.NoError(t, applier.Apply(context.Background(), nil))
	assert.Empty(t, client.createdAccounts)
	assert.Empty(t, client.appliedOps)
}
