// Package identity extracts and propagates end-user identity on the chat
// data plane, and verifies operator bearer tokens on the admin plane.
//
// The chat data plane never validates credentials itself: the upstream
// gateway has already authenticated the caller and injects X-User-Id,
// X-User-Username, and X-User-Role on every forwarded request. gatewayd
// trusts those headers and only fails closed when X-User-Id is absent.
package identity

import (
	"context"
	"net/http"

	"github.com/kubilitics/gatewayd/internal/gwerrors"
)

// UserContext is the authenticated caller identity carried through a
// request's lifetime.
type UserContext struct {
	UserID   string
	Username string
	Role     string
}

type ctxKey struct{}

// WithUserContext returns a copy of ctx carrying uc.
func WithUserContext(ctx context.Context, uc UserContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, uc)
}

// FromContext retrieves the UserContext stashed by WithUserContext.
func FromContext(ctx context.Context) (UserContext, bool) {
	uc, ok := ctx.Value(ctxKey{}).(UserContext)
	return uc, ok
}

// ExtractFromHeaders builds a UserContext from the upstream gateway's
// injected headers. It returns a gwerrors.AuthMissing error when
// X-User-Id is absent — the one case the chat data plane treats as
// unauthenticated.
func ExtractFromHeaders(h http.Header) (UserContext, error) {
	userID := h.Get("X-User-Id")
	if userID == "" {
		return UserContext{}, gwerrors.New(gwerrors.AuthMissing, "missing X-User-Id header")
	}
	return UserContext{
		UserID:   userID,
		Username: h.Get("X-User-Username"),
		Role:     h.Get("X-User-Role"),
	}, nil
}
