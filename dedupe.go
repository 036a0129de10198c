package wikimcp

import (
	"context"

	"github.com/1999AZZAR/wikipedia-mcp-server-sub001/internal/singleflight"
)

// RequestDeduplicator coalesces concurrent operations that share a
// fingerprint so the underlying work runs once. All callers receive the
// identical settled result; the pending entry is removed exactly once at
// settlement, so a caller arriving afterwards starts fresh work.
type RequestDeduplicator struct {
	group *singleflight.Group
}

// NewRequestDeduplicator returns an empty deduplicator.
func NewRequestDeduplicator() *RequestDeduplicator {
	return &RequestDeduplicator{
		group: singleflight.New(),
	}
}

// Deduplicate runs op once per fingerprint across concurrent callers. The
// first caller owns the execution under its own context; later callers attach
// and wait. shared reports whether this caller attached to another caller's
// flight.
//
// A waiter whose ctx ends stops waiting and receives the context error, but
// the shared operation keeps running for everyone else; callers cannot cancel
// the flight itself. Settlement always removes the pending entry, on success
// and failure alike.
func (d *RequestDeduplicator) Deduplicate(ctx context.Context, fingerprint string, op func(context.Context) (interface{}, error)) (val interface{}, shared bool, err error) {
	flight, owner := d.group.Join(fingerprint)
	if !owner {
		val, err = flight.Wait(ctx)
		return val, true, err
	}

	val, err = op(ctx)
	d.group.Settle(fingerprint, val, err)
	return val, false, err
}

// Pending returns the number of fingerprints with work in flight.
func (d *RequestDeduplicator) Pending() int {
	return d.group.Inflight()
}
