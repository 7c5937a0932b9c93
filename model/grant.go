package model

import "time"

// Role is a capability held in the role registry.
type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RolePoliticalActor Role = "POLITICAL_ACTOR"
	RoleCitizen        Role = "CITIZEN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePoliticalActor, RoleCitizen:
		return true
	}
	return false
}

// GrantStatus 授权意图在发件箱中的状态
type GrantStatus string

const (
	GrantPending   GrantStatus = "pending"
	GrantPublished GrantStatus = "published"
	GrantFailed    GrantStatus = "failed"
)

// GrantIntent asks the role registry to grant Role to Account. Credit is the
// per-cycle scheduling allowance for political actors and zero otherwise.
type GrantIntent struct {
	ID         string      `json:"id"`
	Account    string      `json:"account"`
	Role       Role        `json:"role"`
	Credit     uint64      `json:"credit"`
	Reason     string      `json:"reason"`
	Status     GrantStatus `json:"status"`
	RetryCount int         `json:"retry_count"`
	CreatedAt  time.Time   `json:"created_at"`
}
