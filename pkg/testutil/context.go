package testutil

import (
	"context"
	"net/http"

	"vigil/internal/platform/middleware"
)

// WithOperator adds an operator ID to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithOperator(req *http.Request, operatorID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyOperatorID, operatorID)
	return req.WithContext(ctx)
}

// WithTenant adds a tenant ID to the request context.
func WithTenant(req *http.Request, tenantID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyTenantID, tenantID)
	return req.WithContext(ctx)
}

// WithAuth adds both operator and tenant IDs to the request context.
// This is the typical state for an authenticated reporting request.
func WithAuth(req *http.Request, operatorID, tenantID string) *http.Request {
	ctx := req.Context()
	if operatorID != "" {
		ctx = context.WithValue(ctx, middleware.ContextKeyOperatorID, operatorID)
	}
	if tenantID != "" {
		ctx = context.WithValue(ctx, middleware.ContextKeyTenantID, tenantID)
	}
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
