package rpc

// Envelope is the fixed prefix carried by every request and response:
// a coarse task, an optional per-interface detail task, the target
// object, and the list of ProxyIDs the client pre-allocated for any
// out-objects this call may create. The argument tuple itself is
// marshalled separately by the caller (pkg/wire encodes Envelope and
// the argument tuple back to back, in this order).
type Envelope struct {
	Basic      BasicTask
	Detail     DetailTask
	HasDetail  bool
	Target     ProxyID
	NewProxies []ProxyID
}

// Identifiable marks any server-side object addressable through an
// object registry. The ProxyID a given instance returns is stable for
// its lifetime; the registry, not the object, owns ordering.
type Identifiable interface {
	ProxyID() ProxyID
}
