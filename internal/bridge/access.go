package bridge

import "fmt"

// Role is the dataset-level permission granted to an account.
type Role int

const (
	RoleReader Role = iota
	RoleMaintainer
)

func (r Role) String() string {
	if r == RoleMaintainer {
		return "Maintainer"
	}
	return "Reader"
}

// RelationOperation is what an AccountDatasetRelationOperation asks the
// downstream API to do: set a role, or unset (revoke) any role.
type RelationOperation int

const (
	OperationUnset RelationOperation = iota
	OperationSet
)

// AccountDatasetRelationOperation is the triple the Reconciler emits and
// the Applier applies.
type AccountDatasetRelationOperation struct {
	AccountID string
	Operation RelationOperation
	Role      Role // meaningful only when Operation == OperationSet
	DatasetID string
}

func (o AccountDatasetRelationOperation) String() string {
	if o.Operation == OperationUnset {
		return fmt.Sprintf("Unset(%s, %s)", o.AccountID, o.DatasetID)
	}
	return fmt.Sprintf("Set(%s, %s, %s)", o.AccountID, o.DatasetID, o.Role)
}

// AccessLevelRoleFor maps an AccessLevel to the role class it belongs to:
// {Public, Holder} -> holder-readable (Reader), {Admin, Admin2} -> owner-only (Maintainer).
func AccessLevelRoleFor(level AccessLevel) Role {
	if level.IsHolderReadable() {
		return RoleReader
	}
	return RoleMaintainer
}
