package server_test

import (
	"strings"
	"testing"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptdaemon.dev/cryptd/pkg/acl"
	"cryptdaemon.dev/cryptd/pkg/client"
	"cryptdaemon.dev/cryptd/pkg/keystore"
	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/security"
	"cryptdaemon.dev/cryptd/pkg/server"
	"cryptdaemon.dev/cryptd/pkg/transport"
)

const testSlotDatabase = `[
	{"number": 1, "uuid": "a9f8a0e0-1b1a-4e1a-9f1a-0a0a0a0a0a01", "provider.uuid": "a9f8a0e0-1b1a-4e1a-9f1a-0a0a0a0a0a02", "type": "opaqueData", "capacity": 256}
]`

// startTestDaemon builds a Runtime serving a single keystore provider
// with ACL enforcement disabled (empty config), bound to a socket under
// t.TempDir(), and returns once Serve is running in the background.
func startTestDaemon(t *testing.T) (socketPath string, provider *keystore.Provider, providerUUID uuid.UUID) {
	t.Helper()

	aclCfg, err := acl.Load(strings.NewReader(`[]`))
	require.NoError(t, err)

	provider = keystore.NewProvider(aclCfg, security.NoopReporter{}, nil)
	slots, err := keystore.LoadDatabase(strings.NewReader(testSlotDatabase))
	require.NoError(t, err)
	for _, s := range slots {
		provider.AddSlot(s)
	}

	handshake := server.NewHandshakeProcessor()
	providerUUID = uuid.NewV4()
	handshake.Register(providerUUID, func(id rpc.ProxyID) (any, rpc.Identifiable, error) {
		built := server.NewKeystoreSkeleton(id, provider)
		return built, built.Impl, nil
	})

	runtime := server.NewRuntime(handshake, provider, 0)

	socketPath = t.TempDir() + "/cryptd.sock"
	listener, err := transport.Listen(socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { runtime.Shutdown() })

	go runtime.Serve(listener)

	return socketPath, provider, providerUUID
}

func TestHandshakeAndIsEmptyRoundTrip(t *testing.T) {
	socketPath, _, providerUUID := startTestDaemon(t)

	session, err := client.Dial(socketPath)
	require.NoError(t, err)
	defer session.Close()

	ks, err := session.Keystore(providerUUID)
	require.NoError(t, err)

	empty, err := ks.IsEmpty(1)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestListProviders(t *testing.T) {
	socketPath, _, providerUUID := startTestDaemon(t)

	session, err := client.Dial(socketPath)
	require.NoError(t, err)
	defer session.Close()

	ids, err := session.ListProviders()
	require.NoError(t, err)
	assert.Contains(t, ids, providerUUID)
}

// TestDisconnectRollsBackPendingTransaction exercises spec.md §5's
// disconnect semantics: a transaction left pending when its endpoint
// drops must free its scope slots for the next session, not linger as
// BusyResource forever (Runtime.reclaim -> Provider.RollbackEndpointTransactions).
func TestDisconnectRollsBackPendingTransaction(t *testing.T) {
	socketPath, _, providerUUID := startTestDaemon(t)

	first, err := client.Dial(socketPath)
	require.NoError(t, err)
	ks1, err := first.Keystore(providerUUID)
	require.NoError(t, err)

	txID, err := ks1.BeginTransaction([]keystore.SlotNumber{1})
	require.NoError(t, err)
	assert.NotZero(t, txID)

	require.NoError(t, first.Close())

	require.Eventually(t, func() bool {
		second, err := client.Dial(socketPath)
		if err != nil {
			return false
		}
		defer second.Close()
		ks2, err := second.Keystore(providerUUID)
		if err != nil {
			return false
		}
		_, err = ks2.BeginTransaction([]keystore.SlotNumber{1})
		return err == nil
	}, time.Second, 5*time.Millisecond, "slot 1 should become free once the disconnected endpoint's transaction is rolled back")
}

// TestListProvidersThenHandshakeSameConnection guards against
// ListProviders advancing the endpoint out of Handshaking: since
// cmd/cryptd mints provider UUIDs at boot and only logs them,
// ListProviders is the only way a client discovers them before binding
// one.
func TestListProvidersThenHandshakeSameConnection(t *testing.T) {
	socketPath, _, providerUUID := startTestDaemon(t)

	session, err := client.Dial(socketPath)
	require.NoError(t, err)
	defer session.Close()

	ids, err := session.ListProviders()
	require.NoError(t, err)
	assert.Contains(t, ids, providerUUID)

	ks, err := session.Keystore(providerUUID)
	require.NoError(t, err)

	empty, err := ks.IsEmpty(1)
	require.NoError(t, err)
	assert.True(t, empty)
}

// TestBindMultipleProvidersOnOneConnection covers spec.md §4.5's three
// register messages accepted in HANDSHAKING: a connection must be able
// to bind more than one top-level provider, not just the first one
// before the endpoint leaves Handshaking.
func TestBindMultipleProvidersOnOneConnection(t *testing.T) {
	socketPath, _, providerUUID := startTestDaemon(t)

	session, err := client.Dial(socketPath)
	require.NoError(t, err)
	defer session.Close()

	ks1, err := session.Keystore(providerUUID)
	require.NoError(t, err)

	ks2, err := session.Keystore(providerUUID)
	require.NoError(t, err)

	empty1, err := ks1.IsEmpty(1)
	require.NoError(t, err)
	assert.True(t, empty1)

	empty2, err := ks2.IsEmpty(1)
	require.NoError(t, err)
	assert.True(t, empty2)
}

// TestDestroyIsOneWay guards against the server echoing a response to
// BasicTaskDestroy: Base.Close() never reads one, so a stray response
// left in the connection's buffer would be consumed by the next call
// on any proxy sharing the connection instead of its own reply.
func TestDestroyIsOneWay(t *testing.T) {
	socketPath, _, providerUUID := startTestDaemon(t)

	session, err := client.Dial(socketPath)
	require.NoError(t, err)
	defer session.Close()

	ks1, err := session.Keystore(providerUUID)
	require.NoError(t, err)
	ks2, err := session.Keystore(providerUUID)
	require.NoError(t, err)

	require.NoError(t, ks1.Close())

	empty, err := ks2.IsEmpty(1)
	require.NoError(t, err)
	assert.True(t, empty)
}
