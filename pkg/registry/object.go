// Package registry implements the per-endpoint object and skeleton
// registries of SPEC_FULL.md §6.3: a ProxyID maps to at most one entry
// across the owned, borrowed, and skeleton tables at any time
// (spec.md invariant 1).
package registry

import (
	"sync"

	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/werr"
)

const opLookup = "registry.Lookup"
const opRegister = "registry.Register"
const opRequire = "registry.Require"

// Ownership distinguishes a registry entry backed by shared ownership
// from one that merely references an object whose lifetime is governed
// elsewhere (spec.md §4.2).
type Ownership int

const (
	// Owned: the registry holds the only server-side reference that
	// matters; dropped when the client signals destruction.
	Owned Ownership = iota
	// Borrowed: a non-owning reference registered during handshake,
	// never dropped except at shutdown.
	Borrowed
)

// Object is a per-endpoint registry mapping ProxyID to Identifiable
// objects, split into owned and borrowed tables. It is only ever
// touched from the single goroutine driving one ClientEndpoint, so no
// internal locking is required for that use — the mutex here only
// makes a query from another goroutine safe.
type Object struct {
	mu       sync.Mutex
	owned    map[rpc.ProxyID]rpc.Identifiable
	borrowed map[rpc.ProxyID]rpc.Identifiable
}

// NewObject returns an empty Object registry.
func NewObject() *Object {
	return &Object{
		owned:    make(map[rpc.ProxyID]rpc.Identifiable),
		borrowed: make(map[rpc.ProxyID]rpc.Identifiable),
	}
}

// RegisterOwned registers obj under id with shared ownership. Returns
// werr.KindLogicFault if id is already registered in either table
// (spec.md invariant 1).
func (o *Object) RegisterOwned(id rpc.ProxyID, obj rpc.Identifiable) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.has(id) {
		return werr.New(werr.KindLogicFault, opRegister)
	}
	o.owned[id] = obj
	return nil
}

// RegisterBorrowed registers obj under id as a non-owning reference.
func (o *Object) RegisterBorrowed(id rpc.ProxyID, obj rpc.Identifiable) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.has(id) {
		return werr.New(werr.KindLogicFault, opRegister)
	}
	o.borrowed[id] = obj
	return nil
}

func (o *Object) has(id rpc.ProxyID) bool {
	if _, ok := o.owned[id]; ok {
		return true
	}
	_, ok := o.borrowed[id]
	return ok
}

// Lookup returns the object registered under id and whether it is
// owned or borrowed. Fails with werr.KindRpcUnknownObjectIdentifier if
// id is registered in neither table.
func (o *Object) Lookup(id rpc.ProxyID) (rpc.Identifiable, Ownership, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if obj, ok := o.owned[id]; ok {
		return obj, Owned, nil
	}
	if obj, ok := o.borrowed[id]; ok {
		return obj, Borrowed, nil
	}
	return nil, 0, werr.New(werr.KindRpcUnknownObjectIdentifier, opLookup)
}

// Unregister removes id from whichever table holds it (reverse lookup
// by ProxyID; used when a skeleton is destroyed). It is not an error to
// unregister an id that is not present.
func (o *Object) Unregister(id rpc.ProxyID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.owned, id)
	delete(o.borrowed, id)
}

// OwnedIDs returns a snapshot of every ProxyID currently held with
// shared ownership — used on disconnect to drop every owned object
// (spec.md §5's disconnect semantics).
func (o *Object) OwnedIDs() []rpc.ProxyID {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]rpc.ProxyID, 0, len(o.owned))
	for id := range o.owned {
		ids = append(ids, id)
	}
	return ids
}

// Require narrows obj to T, the capability set the caller requires.
// Replaces the C++ dynamic_cast per REDESIGN FLAGS §9: a failed
// narrowing yields werr.KindRuntimeFault rather than a null pointer.
func Require[T any](o *Object, id rpc.ProxyID) (T, error) {
	var zero T
	obj, _, err := o.Lookup(id)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, werr.New(werr.KindRuntimeFault, opRequire)
	}
	return typed, nil
}
