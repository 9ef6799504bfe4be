// Package access defines the authenticated principal the scheduler receives
// from the identity collaborator.
package access

// Role of an authenticated principal.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Principal identifies who is performing an operation.
type Principal struct {
	UserID int64
	Name   string
	Role   Role
}

// Admin reports whether the principal carries administrative privileges.
func (p Principal) Admin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperadmin
}

// CanManage reports whether the principal may act on an appointment owned by
// ownerID: the owner themselves or any administrative actor.
func (p Principal) CanManage(ownerID int64) bool {
	return p.UserID == ownerID || p.Admin()
}
