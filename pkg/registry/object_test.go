package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/werr"
)

type fakeIdentifiable struct {
	id rpc.ProxyID
}

func (f fakeIdentifiable) ProxyID() rpc.ProxyID { return f.id }

type widerCapability interface {
	rpc.Identifiable
	Wider()
}

func (f fakeIdentifiable) Wider() {}

func TestObjectRegistryIdentity(t *testing.T) {
	reg := NewObject()
	id := rpc.ProxyID(0x0A)
	require.NoError(t, reg.RegisterOwned(id, fakeIdentifiable{id: id}))

	obj, ownership, err := reg.Lookup(id)
	require.NoError(t, err)
	require.Equal(t, Owned, ownership)
	require.Equal(t, id, obj.ProxyID())

	reg.Unregister(id)
	_, _, err = reg.Lookup(id)
	require.Error(t, err)
	require.Equal(t, werr.KindRpcUnknownObjectIdentifier, werr.KindOf(err))
}

func TestObjectRegistryRejectsDoubleRegistration(t *testing.T) {
	reg := NewObject()
	id := rpc.ProxyID(1)
	require.NoError(t, reg.RegisterBorrowed(id, fakeIdentifiable{id: id}))
	err := reg.RegisterOwned(id, fakeIdentifiable{id: id})
	require.Error(t, err)
	require.Equal(t, werr.KindLogicFault, werr.KindOf(err))
}

func TestRequireNarrowsCapability(t *testing.T) {
	reg := NewObject()
	id := rpc.ProxyID(2)
	require.NoError(t, reg.RegisterOwned(id, fakeIdentifiable{id: id}))

	widened, err := Require[widerCapability](reg, id)
	require.NoError(t, err)
	widened.Wider()
}

func TestOwnedIDsSnapshot(t *testing.T) {
	reg := NewObject()
	require.NoError(t, reg.RegisterOwned(1, fakeIdentifiable{id: 1}))
	require.NoError(t, reg.RegisterOwned(2, fakeIdentifiable{id: 2}))
	require.NoError(t, reg.RegisterBorrowed(3, fakeIdentifiable{id: 3}))

	owned := reg.OwnedIDs()
	require.ElementsMatch(t, []rpc.ProxyID{1, 2}, owned)
}
