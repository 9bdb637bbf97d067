package extractor

import (
	"context"
	"fmt"
	"time"

	"go-attendsync/internal/branch"
	"go-attendsync/internal/reconcile"
)

// Router picks the extraction path per branch: a branch with a vendor DSN is
// tailed through its database, one with only a device address is read over
// the wire protocol.
type Router struct {
	sql    Extractor
	device Extractor
}

func NewRouter(sql, device Extractor) *Router {
	return &Router{sql: sql, device: device}
}

func (r *Router) ExtractSince(ctx context.Context, b branch.Branch, since time.Time, limit int) ([]reconcile.RawPunchEvent, error) {
	switch {
	case b.VendorDSN != "" && r.sql != nil:
		return r.sql.ExtractSince(ctx, b, since, limit)
	case b.DeviceAddr() != "" && r.device != nil:
		return r.device.ExtractSince(ctx, b, since, limit)
	default:
		return nil, fmt.Errorf("extractor: branch %s has no vendor DSN and no device address", b.ID)
	}
}
