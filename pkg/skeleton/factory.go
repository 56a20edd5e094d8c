package skeleton

import "cryptdaemon.dev/cryptd/pkg/rpc"

// Factory builds the skeleton for a newly created out-object, keyed by
// the interface name the object implements (spec.md §4.3: "a skeleton
// factory for newly created out-objects"). No package in this module
// registers a Factory: pkg/server builds its out-object skeletons
// directly in its method handlers.
type Factory func(id rpc.ProxyID, impl any) (any, error)

// Registry maps an interface name to the Factory that builds its
// skeleton. Base.ProcessMessage does not consult it; a Registry is
// reachable through server.Runtime.Factory and ClientEndpoint.Factory.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty factory Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds name to factory. Intended to be called from each
// generated skeleton package's init().
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// Build invokes the factory registered for name, if any.
func (r *Registry) Build(name string, id rpc.ProxyID, impl any) (any, bool, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, false, nil
	}
	built, err := factory(id, impl)
	return built, true, err
}
