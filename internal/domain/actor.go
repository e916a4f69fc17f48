package domain

// Actor is a resolved identity acting on the workflow.
type Actor struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Roles        []Role `json:"roles"`
	DepartmentID string `json:"department_id,omitempty"`
	Blocked      bool   `json:"blocked"`
}

// HasRole reports whether the actor holds role.
func (a *Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SystemActorID identifies engine-initiated transitions.
const SystemActorID = "system"

// SystemActor is the synthetic actor used for automatic assignment.
func SystemActor() *Actor {
	return &Actor{ID: SystemActorID, Name: "System", Roles: []Role{RoleSystem}}
}
