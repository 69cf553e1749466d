package auth

import (
	"context"

	"github.com/dxia/starshipplan/internal/model"
)

type contextKey struct{}

// AuthContext identifies the already-authenticated caller. The core treats
// it as opaque: the surrounding layer guarantees it before any handler runs.
type AuthContext struct {
	UserID    int64
	Role      model.Role
	ParentID  int64 // 0 for parents
	SessionID int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func IsParent(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == model.RoleParent
}
