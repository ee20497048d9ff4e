// Package models contains the wire-format and business domain types shared
// across the gateway: caller identity, tool-server envelopes, confirmation
// envelopes, and stream events.
package models

// CallerContext is the authenticated identity attached to every request.
// Produced once by the token verifier and treated as read-only afterwards.
type CallerContext struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles"`
	Groups   []string `json:"groups,omitempty"`

	// DepartmentCode is derived from the first group matching
	// "/<CODE>-Department". Empty when no such group exists.
	DepartmentCode string `json:"departmentCode,omitempty"`

	// TokenID is the token's jti claim, used for revocation checks.
	// Empty when the token carries no identifier.
	TokenID string `json:"-"`
}

// HasRole reports whether the caller holds the given role.
func (c *CallerContext) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UserContext is the caller subset forwarded to tool servers.
type UserContext struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles"`
}

// ToUserContext returns the tool-server projection of the caller.
func (c *CallerContext) ToUserContext() UserContext {
	return UserContext{
		UserID:   c.UserID,
		Username: c.Username,
		Email:    c.Email,
		Roles:    c.Roles,
	}
}
