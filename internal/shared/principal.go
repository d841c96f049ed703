package shared

import (
	"context"
	"fmt"
	"slices"
)

// Role is the coarse authorization group of a user.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleStaff Role = "Staff"
	RoleUser  Role = "User"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleUser:
		return true
	default:
		return false
	}
}

// Operators are the roles allowed to drive procurement and warehouse documents.
var Operators = []Role{RoleStaff, RoleAdmin}

// Principal describes the authenticated caller of a workflow operation.
type Principal struct {
	UserID   int64
	Username string
	Role     Role
}

// IsAdmin reports whether the caller bypasses status-based delete restrictions.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Require returns ErrForbidden unless the principal holds one of roles.
func (p Principal) Require(roles ...Role) error {
	if p.UserID == 0 {
		return ErrUnauthenticated
	}
	if slices.Contains(roles, p.Role) {
		return nil
	}
	return fmt.Errorf("%w: role %s not allowed", ErrForbidden, p.Role)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the caller in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the caller from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
