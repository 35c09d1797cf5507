package middleware

import (
	"context"

	"github.com/biddart/biddart-backend/internal/tenancy"
	pkgAuth "github.com/biddart/biddart-backend/pkg/auth"
)

type contextKey string

const (
	ctxScope contextKey = "tenancy_scope"
	ctxRole  contextKey = "staff_role"
)

// ScopeFromContext returns the tenant scope seeded by Auth.
func ScopeFromContext(ctx context.Context) (tenancy.Scope, bool) {
	if ctx == nil {
		return tenancy.Scope{}, false
	}
	scope, ok := ctx.Value(ctxScope).(tenancy.Scope)
	return scope, ok
}

func RoleFromContext(ctx context.Context) pkgAuth.Role {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(pkgAuth.Role); ok {
		return v
	}
	return ""
}

// WithScope injects the tenant scope into the context for downstream handlers.
func WithScope(ctx context.Context, scope tenancy.Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxScope, scope)
}

func withRole(ctx context.Context, role pkgAuth.Role) context.Context {
	return context.WithValue(ctx, ctxRole, role)
}
