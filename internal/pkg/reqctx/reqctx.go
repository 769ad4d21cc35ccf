// Package reqctx carries per-request values (request id, caller identity,
// idempotency key) explicitly through context.Context.
package reqctx

import "context"

// contextKey is an unexported type for context keys in this package.
// Using a custom type prevents collisions with keys from other packages
// that might use the same underlying string value.
type contextKey string

const (
	HeaderXRequestId     = "X-Request-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderXUserId        = "X-User-Id"
	HeaderXUserStaff     = "X-User-Staff"
	HeaderAuthorization  = "Authorization"
)

const (
	contextKeyRequestID   contextKey = "request_id"
	contextKeyIdentity    contextKey = "identity"
	contextKeyIdempotency contextKey = "idempotency_key"
)

// Identity is the caller of the current request as asserted by the gateway.
type Identity struct {
	UserID int64
	Staff  bool
	// Token is the end-user bearer token, without the "Bearer " prefix.
	Token string
}

// Authenticated reports whether the identity names a user.
func (i Identity) Authenticated() bool { return i.UserID > 0 }

// CanSee reports whether the identity may read data owned by ownerID.
func (i Identity) CanSee(ownerID int64) bool {
	return i.Staff || (i.Authenticated() && i.UserID == ownerID)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

// RequestID returns the request id stored in ctx, or "" when absent.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

// IdentityFrom returns the caller identity. The zero Identity is returned
// for anonymous requests.
func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(contextKeyIdentity).(Identity)
	return id
}

func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, contextKeyIdempotency, key)
}

func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(contextKeyIdempotency).(string)
	return key
}
