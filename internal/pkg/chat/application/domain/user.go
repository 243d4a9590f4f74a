package chat

import "strings"

// Role is the platform role of a user, owned by the identity subsystem.
type Role string

const (
	RoleModel  Role = "model"
	RoleAgency Role = "agency"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleModel, RoleAgency, RoleAdmin:
		return true
	}
	return false
}

// CanInitiate reports whether the role may open new conversations and
// delete existing ones.
func (r Role) CanInitiate() bool {
	return r == RoleAgency || r == RoleAdmin
}

// User is a read-only view of a directory entry.
type User struct {
	ID          string `db:"id" json:"id"`
	Role        Role   `db:"role" json:"role"`
	FirstName   string `db:"first_name" json:"firstName,omitempty"`
	LastName    string `db:"last_name" json:"lastName,omitempty"`
	CompanyName string `db:"company_name" json:"companyName,omitempty"`
	Avatar      string `db:"avatar" json:"avatar,omitempty"`
}

// DisplayName prefers the person's name and falls back to the company.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.CompanyName != "" {
		return u.CompanyName
	}
	return u.ID
}
