// ABOUTME: Request identity carried through handlers via context
// ABOUTME: Provides WithUser/UserFromContext

package auth

import "context"

// userKey is the key type for storing the user id in context.Context.
type userKey struct{}

// WithUser returns a new context carrying the authenticated user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the authenticated user id, or "" when the request is unauthenticated.
func UserFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userKey{}).(string)
	return userID
}
