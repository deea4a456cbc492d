package model

type Role string

const (
	RoleProvider  Role = "provider"
	RoleRequester Role = "requester"
	RoleAdmin     Role = "admin"
)

// Actor identifies the authenticated caller of an engine operation.
// Authentication itself happens upstream; the engine only evaluates
// role and ownership.
type Actor struct {
	ID   int64  `json:"id"`
	Role Role   `json:"role"`
	Name string `json:"name"`
}

func (a Actor) IsAdmin() bool     { return a.Role == RoleAdmin }
func (a Actor) IsProvider() bool  { return a.Role == RoleProvider }
func (a Actor) IsRequester() bool { return a.Role == RoleRequester }
