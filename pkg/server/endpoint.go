// Package server implements the daemon's connection acceptor,
// per-client endpoint state machine, and message dispatcher (spec.md
// §4.5, §4.6).
package server

import (
	"net"
	"sync"

	"github.com/op/go-logging"

	"cryptdaemon.dev/cryptd/pkg/registry"
	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/skeleton"
	"cryptdaemon.dev/cryptd/pkg/transport"
	"cryptdaemon.dev/cryptd/pkg/werr"
	"cryptdaemon.dev/cryptd/pkg/wire"
)

var log = logging.MustGetLogger("server")

// State is one of the ClientEndpoint lifecycle states (spec.md §4.5).
type State int

const (
	StateListening State = iota
	StateHandshaking
	StateReady
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// ClientEndpoint is the per-connection state the spec assigns one of
// to every accepted client: a transport, the object/skeleton
// registries, and the handshake and message processors. Caller
// credentials are read per message in Run and passed to each dispatch.
type ClientEndpoint struct {
	mu    sync.Mutex
	id    string
	conn  net.Conn
	state State

	objects   *registry.Object
	skeletons *registry.Skeleton
	factory   *skeleton.Registry

	handshake *HandshakeProcessor
	dispatch  *MessageProcessor

	onDisconnect func(*ClientEndpoint)
}

// NewClientEndpoint constructs an endpoint bound to conn, starting in
// StateListening before the caller transitions it to StateHandshaking.
func NewClientEndpoint(id string, conn net.Conn, factory *skeleton.Registry, handshake *HandshakeProcessor, dispatch *MessageProcessor, onDisconnect func(*ClientEndpoint)) *ClientEndpoint {
	return &ClientEndpoint{
		id:           id,
		conn:         conn,
		state:        StateListening,
		objects:      registry.NewObject(),
		skeletons:    registry.NewSkeleton(),
		factory:      factory,
		handshake:    handshake,
		dispatch:     dispatch,
		onDisconnect: onDisconnect,
	}
}

// ID identifies this endpoint for logging and transaction ownership
// tracking in pkg/keystore.
func (e *ClientEndpoint) ID() string { return e.id }

func (e *ClientEndpoint) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *ClientEndpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

const opProcessMessage = "server.ClientEndpoint.Run"

// Run services this endpoint until the connection closes: one message
// is processed fully before the next is read, satisfying spec.md §5's
// "while it runs, no other message from the same endpoint is
// processed" without any per-endpoint locking.
func (e *ClientEndpoint) Run() {
	e.setState(StateHandshaking)
	defer e.close()

	for {
		cred, err := transport.PeerCredentials(e.conn)
		if err != nil {
			log.Warningf("endpoint %s: peer credentials unavailable, refusing message: %v", e.id, err)
			return
		}

		raw, err := wire.ReadMessage(e.conn)
		if err != nil {
			log.Debugf("endpoint %s: disconnect: %v", e.id, err)
			return
		}

		resp, silent := e.dispatchOne(cred, raw)
		if silent {
			continue
		}
		if err := wire.WriteMessage(e.conn, resp); err != nil {
			log.Debugf("endpoint %s: write failed, closing: %v", e.id, err)
			return
		}
	}
}

// isHandshakePhase reports whether task is one of the three messages
// spec.md §4.5 accepts during HANDSHAKING: listing providers never
// touches the state machine, and registering a provider (initial
// handshake or an additional top-level provider) is also accepted once
// already Ready, so a client can bind the key-storage provider and a
// crypto/X.509 provider on one connection.
func isHandshakePhase(task rpc.BasicTask) bool {
	switch task {
	case rpc.BasicTaskListProviders, rpc.BasicTaskHandshake, rpc.BasicTaskRegisterProvider:
		return true
	default:
		return false
	}
}

// dispatchOne processes one envelope and reports whether the caller
// must skip writing a response: BasicTaskDestroy is one-way per
// spec.md §4.4 ("destructor must not block on network failure") and
// the client never reads a reply for it, so echoing one back would
// desynchronize the next response read on a connection shared by
// other proxies.
func (e *ClientEndpoint) dispatchOne(cred transport.Credentials, raw []byte) (resp []byte, silent bool) {
	r := wire.NewReader(raw)
	env := r.ReadEnvelope()
	if err := r.Err(); err != nil {
		return encodeError(err), false
	}

	if env.Basic == rpc.BasicTaskDestroy {
		if e.State() != StateReady {
			return encodeError(werr.New(werr.KindRpcUnknownTask, opProcessMessage)), false
		}
		if err := e.dispatch.Destroy(e, env); err != nil {
			log.Warningf("endpoint %s: destroy failed: %v", e.id, err)
		}
		return nil, true
	}

	var out *wire.Writer
	var err error
	switch {
	case isHandshakePhase(env.Basic):
		state := e.State()
		if state != StateHandshaking && state != StateReady {
			err = werr.New(werr.KindRpcUnknownTask, opProcessMessage)
			break
		}
		out, err = e.handshake.Process(e, cred, env, r)
		if err == nil && env.Basic != rpc.BasicTaskListProviders {
			e.setState(StateReady)
		}
	case e.State() == StateReady:
		out, err = e.dispatch.Process(e, cred, env, r)
	default:
		err = werr.New(werr.KindRpcUnknownTask, opProcessMessage)
	}

	if err != nil {
		return encodeError(err), false
	}
	return out.Bytes(), false
}

func encodeError(err error) []byte {
	w := wire.NewWriter()
	w.WriteUint8(uint8(rpc.ResponseTagError))
	w.WriteUint16(uint16(werr.KindOf(err)))
	w.WriteString(err.Error())
	return w.Bytes()
}

// Objects exposes the per-endpoint object registry to the handshake
// and message processors.
func (e *ClientEndpoint) Objects() *registry.Object { return e.objects }

// Skeletons exposes the per-endpoint skeleton registry.
func (e *ClientEndpoint) Skeletons() *registry.Skeleton { return e.skeletons }

// Factory exposes the skeleton-building factory for out-objects.
func (e *ClientEndpoint) Factory() *skeleton.Registry { return e.factory }

// close tears down the endpoint: drops every owned object (invoking
// destructors that may clear sensitive buffers) and notifies the
// runtime's reclamation list (spec.md §5 "Disconnect semantics").
func (e *ClientEndpoint) close() {
	e.setState(StateClosing)
	e.conn.Close()

	for _, id := range e.objects.OwnedIDs() {
		obj, _, err := e.objects.Lookup(id)
		if err != nil {
			continue
		}
		if closer, ok := obj.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.Warningf("endpoint %s: error closing object %d: %v", e.id, id, err)
			}
		}
		e.objects.Unregister(id)
	}

	if e.onDisconnect != nil {
		e.onDisconnect(e)
	}
}
