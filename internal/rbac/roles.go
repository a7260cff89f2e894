package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner      = "owner"
	RoleOperator   = "operator" // runs campaigns
	RoleAnalyst    = "analyst"  // read-only reporting
	RoleSuperAdmin = "super_admin"
)

// CommandRoles may start, pause, resume and stop campaigns.
var CommandRoles = []string{RoleOwner, RoleOperator}

// ReadRoles may read campaign status and call history.
var ReadRoles = []string{RoleOwner, RoleOperator, RoleAnalyst}

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
