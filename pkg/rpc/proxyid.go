// Package rpc defines the wire-level message shapes shared by the
// client-side proxy and server-side skeleton machinery: ProxyID, the
// two-level task enum, and the request/response Envelope.
package rpc

import "sync/atomic"

// ProxyID identifies a remote object handle. It is allocated by the
// client for every object it expects to receive or create, and the
// server learns it from request envelopes rather than minting its own.
// 0 is reserved for "no target" (used on the handshake's target field).
type ProxyID uint64

// NoProxyID is the sentinel used as a request's target on the initial
// handshake, before any provider has been registered.
const NoProxyID ProxyID = 0

// IDAllocator hands out client-side ProxyIDs, one per object the client
// expects to receive or create. Safe for concurrent use.
type IDAllocator struct {
	next uint64
}

// Next returns a fresh, never-before-returned ProxyID from this
// allocator. IDs start at 1 so the zero value stays reserved for
// NoProxyID.
func (a *IDAllocator) Next() ProxyID {
	return ProxyID(atomic.AddUint64(&a.next, 1))
}
