package authstate

import (
	"strings"

	"github.com/ikahadi647-afk/authbridge/internal/models"
	"github.com/ikahadi647-afk/authbridge/internal/provider"
)

// Metadata keys consumed from the provider's free-form user metadata.
const (
	metaFullName    = "full_name"
	metaCompanyName = "company_name"
	metaRole        = "role"
	metaPermissions = "permissions"
)

// MapSessionUser derives the application user from a provider session
// user. The same rule runs at startup and on every change event:
//   - display name falls back to the email local-part when full_name is absent
//   - company name defaults to empty
//   - role is binary: exactly "Admin" maps to Admin, anything else to Member
//   - permissions default to an empty list
//
// The password field is never populated; it only satisfies the shared
// user shape.
func MapSessionUser(su *provider.SessionUser) *models.User {
	if su == nil {
		return nil
	}
	u := &models.User{
		ID:          su.ID,
		Email:       su.Email,
		FullName:    stringField(su.Metadata, metaFullName),
		CompanyName: stringField(su.Metadata, metaCompanyName),
		Role:        models.RoleMember,
		Permissions: stringListField(su.Metadata, metaPermissions),
	}
	if u.FullName == "" {
		u.FullName = emailLocalPart(su.Email)
	}
	if stringField(su.Metadata, metaRole) == string(models.RoleAdmin) {
		u.Role = models.RoleAdmin
	}
	return u
}

func stringField(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	v, _ := meta[key].(string)
	return v
}

// stringListField decodes a list from untyped metadata. Both []string
// and []interface{} shapes appear in practice; non-string entries are
// skipped.
func stringListField(meta map[string]interface{}, key string) []string {
	out := []string{}
	if meta == nil {
		return out
	}
	switch vs := meta[key].(type) {
	case []string:
		out = append(out, vs...)
	case []interface{}:
		for _, v := range vs {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func emailLocalPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
