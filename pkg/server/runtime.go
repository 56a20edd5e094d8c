package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"cryptdaemon.dev/cryptd/pkg/keystore"
	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/skeleton"
	"cryptdaemon.dev/cryptd/pkg/wire"
)

// Runtime owns the accept loop and the live set of client endpoints
// (spec.md §4.6): one goroutine per accepted connection, cooperatively
// scheduled against each other (no endpoint shares state with another
// except the shared keystore provider, which serializes its own
// mutating operations). A reclamation callback removes an endpoint from
// the live set and rolls back any transaction it left pending, the
// disconnect semantics of spec.md §5.
type Runtime struct {
	handshake *HandshakeProcessor
	dispatch  *MessageProcessor
	factory   *skeleton.Registry
	keystore  *keystore.Provider

	maxConnections int
	nextID         uint64

	mu        sync.Mutex
	listener  net.Listener
	endpoints map[string]*ClientEndpoint
	closing   bool
	wg        sync.WaitGroup
}

// NewRuntime constructs a Runtime ready to Serve. keystoreProvider may
// be nil only in tests that never open a keystore handshake; a real
// deployment always supplies one so disconnect can roll back its
// endpoint-local transactions.
func NewRuntime(handshake *HandshakeProcessor, keystoreProvider *keystore.Provider, maxConnections int) *Runtime {
	return &Runtime{
		handshake:      handshake,
		dispatch:       NewMessageProcessor(),
		factory:        skeleton.NewRegistry(),
		keystore:       keystoreProvider,
		maxConnections: maxConnections,
		endpoints:      make(map[string]*ClientEndpoint),
	}
}

// Factory exposes the out-object skeleton factory so cmd/cryptd can
// register per-interface constructors before Serve starts accepting.
func (rt *Runtime) Factory() *skeleton.Registry { return rt.factory }

// Serve accepts connections on l until Shutdown is called or Accept
// fails for a reason other than the listener being closed. Each
// accepted connection runs its ClientEndpoint.Run loop on its own
// goroutine; Serve blocks until every endpoint it spawned has returned.
func (rt *Runtime) Serve(l net.Listener) error {
	rt.mu.Lock()
	rt.listener = l
	rt.mu.Unlock()

	for {
		conn, err := l.Accept()
		if err != nil {
			rt.mu.Lock()
			closing := rt.closing
			rt.mu.Unlock()
			if closing {
				rt.wg.Wait()
				return nil
			}
			return err
		}

		rt.mu.Lock()
		if rt.maxConnections > 0 && len(rt.endpoints) >= rt.maxConnections {
			rt.mu.Unlock()
			log.Warningf("rejecting connection: at maxConnectionNum (%d)", rt.maxConnections)
			conn.Close()
			continue
		}
		id := fmt.Sprintf("ep-%d", atomic.AddUint64(&rt.nextID, 1))
		ep := NewClientEndpoint(id, conn, rt.factory, rt.handshake, rt.dispatch, rt.reclaim)
		rt.endpoints[id] = ep
		rt.mu.Unlock()

		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			ep.Run()
		}()
	}
}

// reclaim is the ClientEndpoint onDisconnect callback: it drops the
// endpoint from the live set and rolls back any transaction it left
// pending (spec.md §5 "Disconnect semantics"). Named for the
// accept-loop's reclamation-list design in spec.md §4.6 step 3, even
// though here the drop happens inline rather than on a reactor tick —
// Go's per-connection goroutine makes a separate tick unnecessary.
func (rt *Runtime) reclaim(ep *ClientEndpoint) {
	rt.mu.Lock()
	delete(rt.endpoints, ep.ID())
	rt.mu.Unlock()

	if rt.keystore != nil {
		rt.keystore.RollbackEndpointTransactions(ep.ID())
	}
}

// Shutdown stops accepting new connections, sends a best-effort
// "server closing" envelope to every live endpoint and closes its
// connection, closes the listener, and waits for every endpoint to
// return (spec.md §4.6: "Shuts down on SIGTERM/SIGINT... sends a
// final 'server closing' envelope to each endpoint if possible").
func (rt *Runtime) Shutdown() {
	rt.mu.Lock()
	rt.closing = true
	l := rt.listener
	eps := make([]*ClientEndpoint, 0, len(rt.endpoints))
	for _, ep := range rt.endpoints {
		eps = append(eps, ep)
	}
	rt.mu.Unlock()

	for _, ep := range eps {
		ep.notifyShutdown()
		ep.conn.Close()
	}
	if l != nil {
		l.Close()
	}
	rt.wg.Wait()
}

// notifyShutdown best-effort-sends a body-less BasicTaskShutdown
// envelope to the client before Shutdown closes the connection.
// Failures are swallowed: the client learns
// of the disconnect either way.
func (e *ClientEndpoint) notifyShutdown() {
	env := rpc.Envelope{Basic: rpc.BasicTaskShutdown}
	w := wire.NewWriter()
	w.WriteEnvelope(env)
	if w.Err() != nil {
		return
	}
	_ = wire.WriteMessage(e.conn, w.Bytes())
}
