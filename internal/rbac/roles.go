package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleOperator runs calls from the dashboard: dial, watch, terminate.
	RoleOperator = "operator"
	// RoleSupervisor reads every call and transcript but does not dial.
	RoleSupervisor = "supervisor"
	// RoleAdmin manages the deployment and bypasses role checks.
	RoleAdmin = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
