package httpapi

import (
	"context"

	"github.com/atvirokodosprendimai/storefront/internal/adapters/partition"
	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
)

// RequestContext is the per-request tenant state. Session is only set inside
// routes that bind a partition.
type RequestContext struct {
	Resolution domain.Resolution
	Session    *partition.Session
}

func (rc RequestContext) Tenant() (domain.Tenant, bool) {
	return rc.Resolution.Tenant, rc.Resolution.IsResolved()
}

func (rc RequestContext) Partition() domain.Partition {
	return rc.Resolution.Partition()
}

type requestContextKey struct{}

func withRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext stored by the identify middleware.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}
