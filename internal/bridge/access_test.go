package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessLevelRoleFor(t *testing.T) {
	assert.Equal(t, RoleReader, AccessLevelRoleFor(AccessPublic))
	assert.Equal(t, RoleReader, AccessLevelRoleFor(AccessHolder))
	assert.Equal(t, RoleMaintainer, AccessLevelRoleFor(AccessAdmin))
	assert.Equal(t, RoleMaintainer, AccessLevelRoleFor(AccessAdmin2))
}

func TestAccountDatasetRelationOperation_String(t *testing.T) {
	set := AccountDatasetRelationOperation{AccountID: "did:pkh:eip155:1:0xAAA", Operation: OperationSet, Role: RoleMaintainer, DatasetID: "ds1"}
	assert.Equal(t, "Set(did:pkh:eip155:1:0xAAA, ds1, Maintainer)", set.String())

	unset := AccountDatasetRelationOperation{AccountID: "did:pkh:eip155:1:0xAAA", Operation: OperationUnset, DatasetID: "ds1"}
	assert.Equal(t, "Unset(did:pkh:eip155:1:0xAAA, ds1)", unset.String())
}
