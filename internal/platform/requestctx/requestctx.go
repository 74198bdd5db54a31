// Package requestctx carries per-request caller identity through context.
package requestctx

import "context"

// userIDContextKey is the context key for authenticated user identity.
type userIDContextKey struct{}

// rolesContextKey is the context key for the caller's global role names.
type rolesContextKey struct{}

// WithUserID stores a user identifier in context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the user identifier stored in context.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDContextKey{}).(string)
	return value
}

// WithRoles stores the caller's global role names in context.
func WithRoles(ctx context.Context, roles []string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	cloned := make([]string, len(roles))
	copy(cloned, roles)
	return context.WithValue(ctx, rolesContextKey{}, cloned)
}

// RolesFromContext returns the caller's global role names stored in context.
func RolesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	value, _ := ctx.Value(rolesContextKey{}).([]string)
	return value
}

// HasRole reports whether the caller holds the named role.
func HasRole(ctx context.Context, role string) bool {
	for _, held := range RolesFromContext(ctx) {
		if held == role {
			return true
		}
	}
	return false
}
