package model

import "time"

// Role controls which transitions an actor may perform.
type Role string

const (
	RoleParent   Role = "parent"
	RoleKid      Role = "kid"
	RoleSystem   Role = "system"
	RoleUnmapped Role = "unmapped"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleParent, RoleKid, RoleSystem, RoleUnmapped:
		return true
	}
	return false
}

type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
	// Balance is derived from the points ledger; the stored value is kept in
	// sync transactionally and verified by the audit job.
	Balance   int       `json:"balance"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Actor is the resolved caller of an engine operation, supplied by the
// (external) identity layer.
type Actor struct {
	UserID int64
	Role   Role
}

// System is the actor used by background jobs.
var System = Actor{UserID: 0, Role: RoleSystem}
