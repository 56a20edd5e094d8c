package registry

import (
	"sync"

	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/werr"
)

// Skeleton is a per-endpoint registry mapping ProxyID to a server-side
// skeleton instance (a *skeleton.Base[I] in practice, stored opaquely
// here to avoid an import cycle — pkg/skeleton depends on pkg/registry
// for the registries it dispatches against). It mirrors Object's
// single-owner-per-id discipline but keys a different kind of value,
// per spec.md §4.3 ("one ProxyId maps to at most one skeleton + at
// most one implementation").
type Skeleton struct {
	mu    sync.Mutex
	table map[rpc.ProxyID]any
}

// NewSkeleton returns an empty Skeleton registry.
func NewSkeleton() *Skeleton {
	return &Skeleton{table: make(map[rpc.ProxyID]any)}
}

// Register binds inst to id. Fails with werr.KindLogicFault if id is
// already bound.
func (s *Skeleton) Register(id rpc.ProxyID, inst any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.table[id]; ok {
		return werr.New(werr.KindLogicFault, opRegister)
	}
	s.table[id] = inst
	return nil
}

// Lookup returns the skeleton instance bound to id.
func (s *Skeleton) Lookup(id rpc.ProxyID) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.table[id]
	if !ok {
		return nil, werr.New(werr.KindRpcUnknownObjectIdentifier, opLookup)
	}
	return inst, nil
}

// Unregister removes id from the table. Not an error if absent.
func (s *Skeleton) Unregister(id rpc.ProxyID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.table, id)
}
