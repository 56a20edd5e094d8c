// Package skeleton implements the server-side adapter that dispatches
// an incoming RPC call to a real implementation object: the per-type
// method table, the seven-step ProcessMessage algorithm, and the
// out-object marshalling rules of spec.md §4.3.
package skeleton

import (
	"cryptdaemon.dev/cryptd/pkg/registry"
	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/werr"
	"cryptdaemon.dev/cryptd/pkg/wire"
)

const opDispatch = "skeleton.ProcessMessage"

// CallContext carries per-request state a method handler may need:
// the effective caller uid attached by the transport (spec.md §4.5),
// and the registries new out-objects must be registered into.
type CallContext struct {
	CallerUID  uint32
	CallerPID  uint32
	Objects    *registry.Object
	Skeletons  *registry.Skeleton
	NewProxies []rpc.ProxyID
	// EndpointID identifies the ClientEndpoint driving this call, so
	// handlers that open transactions can tag them for reclamation on
	// disconnect (spec.md §5).
	EndpointID string
	// nextNewProxy is the cursor into NewProxies consumed by
	// AllocateProxyID, RegisterBorrowedOutObject and
	// RegisterOwnedOutObject, one element per created out-object in
	// declaration order (spec.md §4.3 step 5).
	nextNewProxy int
}

// nextProxyID pops the next pre-allocated ProxyID off NewProxies.
// Fails with werr.KindIncompleteArgState if the client under-allocated.
func (c *CallContext) nextProxyID() (rpc.ProxyID, error) {
	if c.nextNewProxy >= len(c.NewProxies) {
		return 0, werr.New(werr.KindIncompleteArgState, opDispatch)
	}
	id := c.NewProxies[c.nextNewProxy]
	c.nextNewProxy++
	return id, nil
}

// AllocateProxyID exposes nextProxyID to callers that must build a
// skeleton bound to its final ProxyID before registering it (spec.md
// §4.3 step 5's "owned smart-pointer" case, where the skeleton's id
// must match the registry entry from construction).
func (c *CallContext) AllocateProxyID() (rpc.ProxyID, error) {
	return c.nextProxyID()
}

// RegisterBorrowedOutObject registers a reference-typed out-object
// (spec.md §4.3 step 5, "reference to an Identifiable") under the next
// pre-allocated ProxyID and returns it so the caller can tag the
// response as ResponseTagSkeletonCreated and encode the new ProxyID.
func (c *CallContext) RegisterBorrowedOutObject(obj rpc.Identifiable) (rpc.ProxyID, error) {
	id, err := c.nextProxyID()
	if err != nil {
		return 0, err
	}
	if err := c.Objects.RegisterBorrowed(id, obj); err != nil {
		return 0, err
	}
	return id, nil
}

// RegisterOwnedOutObject registers an owned out-object (spec.md §4.3
// step 5, "owned smart-pointer to an Identifiable") and its freshly
// built skeleton under the same new ProxyID.
func (c *CallContext) RegisterOwnedOutObject(obj rpc.Identifiable, built any) (rpc.ProxyID, error) {
	id, err := c.nextProxyID()
	if err != nil {
		return 0, err
	}
	if err := c.Objects.RegisterOwned(id, obj); err != nil {
		return 0, err
	}
	if err := c.Skeletons.Register(id, built); err != nil {
		c.Objects.Unregister(id)
		return 0, err
	}
	return id, nil
}

// Dispatcher is satisfied by every *Base[I] regardless of I, since
// ProcessMessage's signature never mentions the type parameter. The
// message processor looks up a ProxyID's skeleton as `any` and narrows
// it to this interface to dispatch, without a type switch over every
// generated skeleton type.
type Dispatcher interface {
	ProcessMessage(ctx *CallContext, detail rpc.DetailTask, in *wire.Reader, out *wire.Writer) error
}

// MethodFunc is one entry of a skeleton's method table: it decodes its
// own arguments from in, invokes the implementation, and encodes its
// own return value(s) to out. Handlers never need to touch the
// envelope prefix — ProcessMessage already consumed it.
type MethodFunc func(ctx *CallContext, in *wire.Reader, out *wire.Writer) error

// Base is embedded by every generated skeleton type. I is the
// implementation interface this skeleton adapts.
type Base[I any] struct {
	Impl    I
	id      rpc.ProxyID
	Methods map[rpc.DetailTask]MethodFunc
	// Restricted lists DetailTasks that require CallerUID == AllowedUID
	// before the implementation is invoked (spec.md §4.3, X.509
	// provisioning in particular).
	Restricted map[rpc.DetailTask]bool
	AllowedUID uint32
}

// NewBase constructs a Base bound to id and impl, with an empty method
// table ready for the generated skeleton's init to populate.
func NewBase[I any](id rpc.ProxyID, impl I) *Base[I] {
	return &Base[I]{
		Impl:       impl,
		id:         id,
		Methods:    make(map[rpc.DetailTask]MethodFunc),
		Restricted: make(map[rpc.DetailTask]bool),
	}
}

// ProxyID satisfies rpc.Identifiable.
func (b *Base[I]) ProxyID() rpc.ProxyID { return b.id }

// ProcessMessage implements the seven-step algorithm of spec.md §4.3,
// steps 1-2 (parsing the envelope prefix, recording caller_uid) having
// already happened in the caller (pkg/server's MessageProcessor); this
// entry point starts at step 3 (argument decode) with ctx already
// carrying the caller uid and the call's new-proxy-id list.
func (b *Base[I]) ProcessMessage(ctx *CallContext, detail rpc.DetailTask, in *wire.Reader, out *wire.Writer) error {
	method, ok := b.Methods[detail]
	if !ok {
		return werr.New(werr.KindRpcUnknownTask, opDispatch)
	}
	if b.Restricted[detail] && ctx.CallerUID != b.AllowedUID {
		// Restricted methods short-circuit to AccessViolation without
		// ever invoking the implementation (spec.md §4.3).
		return werr.New(werr.KindAccessViolation, opDispatch)
	}
	return method(ctx, in, out)
}
