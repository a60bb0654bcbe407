// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"sync"

	"github.com/onnwee/galeria/internal/auth"
)

type (
	requestIDKey    struct{}
	principalKey    struct{}
	requestStateKey struct{}
)

// requestState is shared by pointer through the handler chain so values set
// by inner handlers reach the outer logging middleware.
type requestState struct {
	mu        sync.Mutex
	userID    string
	errorCode string
}

// withRequestState returns ctx carrying a request state, reusing an existing one.
func withRequestState(ctx context.Context) (context.Context, *requestState) {
	if st, ok := ctx.Value(requestStateKey{}).(*requestState); ok {
		return ctx, st
	}
	st := &requestState{}
	return context.WithValue(ctx, requestStateKey{}, st), st
}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(requestStateKey{}).(*requestState)
	return st
}

// GetRequestID returns the request ID from context. Returns empty string if not present.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// SetPrincipal stores the authenticated principal in the context.
func SetPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	ctx, st := withRequestState(ctx)
	st.mu.Lock()
	st.userID = p.UserID
	st.mu.Unlock()
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipal returns the authenticated principal, or nil.
func GetPrincipal(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(principalKey{}).(*auth.Principal)
	return p
}

// GetUserID returns the authenticated user id, or "".
func GetUserID(ctx context.Context) string {
	if p := GetPrincipal(ctx); p != nil {
		return p.UserID
	}
	if st := stateFrom(ctx); st != nil {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.userID
	}
	return ""
}

// SetErrorCode records the error code of the response for request logging.
// Handlers call it when writing an error response.
func SetErrorCode(ctx context.Context, code string) context.Context {
	ctx, st := withRequestState(ctx)
	st.mu.Lock()
	st.errorCode = code
	st.mu.Unlock()
	return ctx
}

// GetErrorCode retrieves the error code from context. Returns empty string if not present.
func GetErrorCode(ctx context.Context) string {
	st := stateFrom(ctx)
	if st == nil {
		return ""
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.errorCode
}
