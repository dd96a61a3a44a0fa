package models

// Role is the application-level authorization role. Mapping from provider
// metadata is binary: exactly "Admin" stays "Admin", everything else
// (including an absent role) becomes "Member".
type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleMember Role = "Member"
)

// User is the application user derived from a provider session. It is
// ephemeral: recomputed on every session event and dropped when the
// provider reports no session.
type User struct {
	ID          string   `bson:"_id" json:"id"`
	Email       string   `bson:"email" json:"email"`
	FullName    string   `bson:"fullName" json:"fullName"`
	CompanyName string   `bson:"companyName" json:"companyName"`
	Role        Role     `bson:"role" json:"role"`
	Permissions []string `bson:"permissions" json:"permissions"`

	// Password satisfies the user shape shared with the UI. It is never
	// populated from the provider and must stay empty.
	Password string `bson:"-" json:"-"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }
