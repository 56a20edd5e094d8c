// Package proxy implements the client-side mirror of pkg/skeleton: a
// handle bound to one remote object, the call-and-wait algorithm, and
// destroy-on-close semantics (spec.md §4.4).
package proxy

import (
	"net"
	"sync"
	"time"

	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/werr"
	"cryptdaemon.dev/cryptd/pkg/wire"
)

const opCall = "proxy.Call"
const opClose = "proxy.Close"

// destroyDeadline bounds how long Close's best-effort destroy message
// is allowed to block — spec.md §4.4: "The proxy's destructor must not
// block on network failure."
const destroyDeadline = 200 * time.Millisecond

// Conn is the transport surface a Base needs: a single
// request/response round trip plus a best-effort notify for destroy
// messages. Any net.Conn, such as the one pkg/transport.Dial returns,
// satisfies this.
type Conn interface {
	net.Conn
}

// Base is embedded by every generated client-side proxy type. It owns
// the connection, a shared ProxyID allocator (one per session, so
// every proxy created over one connection draws from the same
// sequence), and this proxy's own ProxyID.
type Base struct {
	mu    sync.Mutex
	conn  Conn
	alloc *rpc.IDAllocator
	id    rpc.ProxyID

	closeOnce sync.Once
}

// NewBase constructs a Base bound to id over conn, sharing alloc with
// every other proxy on the same session so new-proxy-id allocation
// never collides (spec.md §4.4 step 1).
func NewBase(conn Conn, alloc *rpc.IDAllocator, id rpc.ProxyID) *Base {
	return &Base{conn: conn, alloc: alloc, id: id}
}

// ProxyID returns this proxy's own handle.
func (b *Base) ProxyID() rpc.ProxyID { return b.id }

// Allocator exposes the shared ProxyID allocator so generated proxy
// methods can pre-allocate ids for out-objects their call may create.
func (b *Base) Allocator() *rpc.IDAllocator { return b.alloc }

// Conn exposes the underlying transport so a proxy method that creates
// an out-object proxy can bind it to the same connection as its
// parent, without the caller needing to thread the session's conn
// through separately.
func (b *Base) Conn() Conn { return b.conn }

// Call performs one synchronous send/receive against the remote
// skeleton bound to this proxy's ProxyID: it builds the envelope
// (steps 1-2), issues the round trip (step 3), and reads the response
// tag (step 4): an error response is decoded into a *werr.Error,
// otherwise the tag and a Reader positioned after it are returned so
// the generated method can finish decoding its own return shape. The
// envelope is always rpc.BasicTaskMethodCall; detail names the
// operation.
func (b *Base) Call(detail rpc.DetailTask, newProxies []rpc.ProxyID, args *wire.Writer) (rpc.ResponseTag, *wire.Reader, error) {
	if args.Err() != nil {
		return 0, nil, werr.Wrap(werr.KindRpcInvalidArgument, opCall, args.Err())
	}

	env := rpc.Envelope{
		Basic:      rpc.BasicTaskMethodCall,
		HasDetail:  true,
		Detail:     detail,
		Target:     b.id,
		NewProxies: newProxies,
	}

	w := wire.NewWriter()
	w.WriteEnvelope(env)
	msg := append(w.Bytes(), args.Bytes()...)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := wire.WriteMessage(b.conn, msg); err != nil {
		return 0, nil, err
	}
	respBytes, err := wire.ReadMessage(b.conn)
	if err != nil {
		return 0, nil, err
	}

	r := wire.NewReader(respBytes)
	tag := rpc.ResponseTag(r.ReadUint8())
	if r.Err() != nil {
		return 0, nil, r.Err()
	}
	if tag == rpc.ResponseTagError {
		kind := werr.Kind(r.ReadUint16())
		msg := r.ReadString()
		if r.Err() != nil {
			return 0, nil, r.Err()
		}
		return 0, nil, werr.Wrap(kind, opCall, errorString(msg))
	}
	return tag, r, nil
}

type errorString string

func (e errorString) Error() string { return string(e) }

// Close enqueues a best-effort destroy message for this proxy's
// ProxyID and returns immediately; network failure here is swallowed —
// the server reclaims on disconnect regardless (spec.md §4.4).
func (b *Base) Close() error {
	b.closeOnce.Do(func() {
		env := rpc.Envelope{Basic: rpc.BasicTaskDestroy, Target: b.id}
		w := wire.NewWriter()
		w.WriteEnvelope(env)
		if w.Err() != nil {
			return
		}
		_ = b.conn.SetWriteDeadline(time.Now().Add(destroyDeadline))
		_ = wire.WriteMessage(b.conn, w.Bytes())
		_ = b.conn.SetWriteDeadline(time.Time{})
	})
	return nil
}
