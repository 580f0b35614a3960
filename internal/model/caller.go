package model

import "context"

// Caller is the authenticated identity a request acts on behalf of.
type Caller struct {
	UserID  string
	IsAdmin bool
}

// CanAccess reports whether the caller may see or act on an order owned by userID.
func (c Caller) CanAccess(userID string) bool {
	return c.IsAdmin || c.UserID == userID
}

type callerKey struct{}

// WithCaller stores the caller in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller stored by WithCaller.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok && c.UserID != ""
}
