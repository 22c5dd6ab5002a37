package statusflow

// Role identifies the kind of actor requesting a transition.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	// RoleSystem is used by background jobs and partner callbacks. It is permitted on every path.
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleSystem:
		return true
	default:
		return false
	}
}

type Actor struct {
	ID   string
	Role Role
}

func SystemActor(id string) Actor {
	return Actor{ID: id, Role: RoleSystem}
}
