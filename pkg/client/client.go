// Package client is the client-side SDK operator tooling (cmd/cryptctl)
// dials against: a session over pkg/transport, the handshake exchange
// that binds a provider UUID to a local proxy, and typed proxy
// constructors wrapping pkg/proxy.Base for the key-storage provider and
// its trusted containers (spec.md §4.4, §4.5).
//
// Grounded on daemon/client/client.go's dial-then-call helper
// functions, generalized from fixed HTTP-over-UNIX-socket endpoints to
// the binary envelope codec's handshake and method-call shapes.
package client

import (
	"net"

	uuid "github.com/satori/go.uuid"

	"cryptdaemon.dev/cryptd/pkg/keystore"
	"cryptdaemon.dev/cryptd/pkg/proxy"
	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/server"
	"cryptdaemon.dev/cryptd/pkg/transport"
	"cryptdaemon.dev/cryptd/pkg/werr"
	"cryptdaemon.dev/cryptd/pkg/wire"
)

const (
	opDial          = "client.Dial"
	opListProviders = "client.ListProviders"
	opHandshake     = "client.handshake"
	opOpenContainer = "client.Keystore.open"
)

// Session is one connection to the daemon: every proxy constructed
// from it shares its ProxyID allocator, so new-proxy-id allocation
// never collides across the several handles a CLI invocation might
// hold open at once (spec.md §4.4 step 1).
type Session struct {
	conn  net.Conn
	alloc rpc.IDAllocator
}

// Dial connects to the daemon's UNIX-domain socket at path. An empty
// path resolves the default socket location (transport.SocketPath).
func Dial(path string) (*Session, error) {
	if path == "" {
		p, err := transport.SocketPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	conn, err := transport.Dial(path)
	if err != nil {
		return nil, werr.Wrap(werr.KindRpcRuntimeFault, opDial, err)
	}
	return &Session{conn: conn}, nil
}

// Close closes the underlying connection. Every proxy issued from this
// session becomes unusable afterward.
func (s *Session) Close() error { return s.conn.Close() }

type stringErr string

func (e stringErr) Error() string { return string(e) }

// checkResponseTag decodes an error response into a *werr.Error,
// leaving r positioned past the tag for any other response shape.
func checkResponseTag(tag rpc.ResponseTag, r *wire.Reader) error {
	if tag != rpc.ResponseTagError {
		return nil
	}
	kind := werr.Kind(r.ReadUint16())
	msg := r.ReadString()
	if err := r.Err(); err != nil {
		return err
	}
	return werr.Wrap(kind, opHandshake, stringErr(msg))
}

// ListProviders enumerates the provider UUIDs the daemon has
// registered, so an operator can choose one before handshaking
// (spec.md §4.5, SPEC_FULL.md's listProviders supplement).
func (s *Session) ListProviders() ([]uuid.UUID, error) {
	env := rpc.Envelope{Basic: rpc.BasicTaskListProviders}
	w := wire.NewWriter()
	w.WriteEnvelope(env)
	if err := w.Err(); err != nil {
		return nil, err
	}
	if err := wire.WriteMessage(s.conn, w.Bytes()); err != nil {
		return nil, werr.Wrap(werr.KindRpcRuntimeFault, opListProviders, err)
	}
	raw, err := wire.ReadMessage(s.conn)
	if err != nil {
		return nil, werr.Wrap(werr.KindRpcRuntimeFault, opListProviders, err)
	}

	r := wire.NewReader(raw)
	tag := rpc.ResponseTag(r.ReadUint8())
	if err := checkResponseTag(tag, r); err != nil {
		return nil, err
	}
	n := r.ReadUint32()
	ids := make([]uuid.UUID, 0, n)
	for i := uint32(0); i < n; i++ {
		b := r.ReadBytes()
		if r.Err() != nil {
			break
		}
		id, err := uuid.FromBytes(b)
		if err != nil {
			return nil, werr.Wrap(werr.KindUnsupportedFormat, opListProviders, err)
		}
		ids = append(ids, id)
	}
	return ids, r.Err()
}

// handshake performs the initial exchange binding providerUUID to a
// freshly allocated ProxyID (spec.md §4.5), returning the id the
// server bound its skeleton under.
func (s *Session) handshake(providerUUID uuid.UUID) (rpc.ProxyID, error) {
	id := s.alloc.Next()
	env := rpc.Envelope{Basic: rpc.BasicTaskHandshake, NewProxies: []rpc.ProxyID{id}}
	w := wire.NewWriter()
	w.WriteEnvelope(env)
	w.WriteBytes(providerUUID.Bytes())
	if err := w.Err(); err != nil {
		return 0, err
	}
	if err := wire.WriteMessage(s.conn, w.Bytes()); err != nil {
		return 0, werr.Wrap(werr.KindRpcRuntimeFault, opHandshake, err)
	}
	raw, err := wire.ReadMessage(s.conn)
	if err != nil {
		return 0, werr.Wrap(werr.KindRpcRuntimeFault, opHandshake, err)
	}

	r := wire.NewReader(raw)
	tag := rpc.ResponseTag(r.ReadUint8())
	if err := checkResponseTag(tag, r); err != nil {
		return 0, err
	}
	if tag != rpc.ResponseTagSkeletonCreated {
		return 0, werr.New(werr.KindRpcRuntimeFault, opHandshake)
	}
	ids := r.ReadProxyIDSlice()
	if err := r.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, werr.New(werr.KindRpcRuntimeFault, opHandshake)
	}
	return ids[0], nil
}

// Keystore is the client-side proxy for the key-storage provider
// (spec.md §4.7), reached by handshaking against its provider UUID.
type Keystore struct {
	*proxy.Base
}

// Keystore handshakes against providerUUID and returns a proxy bound
// to the server's key-storage provider skeleton.
func (s *Session) Keystore(providerUUID uuid.UUID) (*Keystore, error) {
	id, err := s.handshake(providerUUID)
	if err != nil {
		return nil, err
	}
	return &Keystore{Base: proxy.NewBase(s.conn, &s.alloc, id)}, nil
}

func writeUUIDArg(w *wire.Writer, id uuid.UUID) { w.WriteBytes(id.Bytes()) }

// FindSlotByUUID resolves a slot's stable UUID to its slot number, or
// keystore.InvalidSlot if no slot carries it.
func (k *Keystore) FindSlotByUUID(slotUUID uuid.UUID) (keystore.SlotNumber, error) {
	args := wire.NewWriter()
	writeUUIDArg(args, slotUUID)
	_, r, err := k.Call(server.DetailKeystoreFindSlotByUUID, nil, args)
	if err != nil {
		return 0, err
	}
	n := keystore.SlotNumber(r.ReadUint64())
	return n, r.Err()
}

// FindObject resolves a COUID to the slot currently holding it,
// optionally restricted to slots loaded by providerFilter, continuing
// the scan after previous (keystore.InvalidSlot to start from the
// beginning).
func (k *Keystore) FindObject(couid uuid.UUID, typ keystore.ObjectType, providerFilter *uuid.UUID, previous keystore.SlotNumber) (keystore.SlotNumber, error) {
	args := wire.NewWriter()
	writeUUIDArg(args, couid)
	args.WriteUint16(uint16(typ))
	args.WriteBool(providerFilter != nil)
	if providerFilter != nil {
		writeUUIDArg(args, *providerFilter)
	}
	args.WriteUint64(uint64(previous))
	_, r, err := k.Call(server.DetailKeystoreFindObject, nil, args)
	if err != nil {
		return 0, err
	}
	n := keystore.SlotNumber(r.ReadUint64())
	return n, r.Err()
}

// ListSlots returns every provisioned slot number in ascending order
// (SPEC_FULL.md §8 "slot listing / introspection").
func (k *Keystore) ListSlots() ([]keystore.SlotNumber, error) {
	_, r, err := k.Call(server.DetailKeystoreListSlots, nil, wire.NewWriter())
	if err != nil {
		return nil, err
	}
	n := r.ReadUint32()
	numbers := make([]keystore.SlotNumber, 0, n)
	for i := uint32(0); i < n && r.Err() == nil; i++ {
		numbers = append(numbers, keystore.SlotNumber(r.ReadUint64()))
	}
	return numbers, r.Err()
}

// Export dumps the daemon's current key-database description
// (SPEC_FULL.md §8 "key-database description round trip"), the same
// shape LoadDatabase reads and Provider.Persist writes to disk.
func (k *Keystore) Export() ([]byte, error) {
	_, r, err := k.Call(server.DetailKeystoreExport, nil, wire.NewWriter())
	if err != nil {
		return nil, err
	}
	buf := r.ReadBytes()
	return buf, r.Err()
}

// IsEmpty reports a slot's user-visible emptiness (spec.md §4.7).
func (k *Keystore) IsEmpty(n keystore.SlotNumber) (bool, error) {
	args := wire.NewWriter()
	args.WriteUint64(uint64(n))
	_, r, err := k.Call(server.DetailKeystoreIsEmpty, nil, args)
	if err != nil {
		return false, err
	}
	empty := r.ReadBool()
	return empty, r.Err()
}

// open drives the common shape of OpenAsUser/OpenAsOwner: pre-allocate
// the container's ProxyID, invoke detail, and bind a Container to the
// id the server confirms (spec.md §4.3 step 5, §4.4 step 1).
func (k *Keystore) open(detail rpc.DetailTask, n keystore.SlotNumber) (*Container, error) {
	cid := k.Allocator().Next()
	args := wire.NewWriter()
	args.WriteUint64(uint64(n))
	tag, r, err := k.Call(detail, []rpc.ProxyID{cid}, args)
	if err != nil {
		return nil, err
	}
	if tag != rpc.ResponseTagSkeletonCreated {
		return nil, werr.New(werr.KindRpcRuntimeFault, opOpenContainer)
	}
	ids := r.ReadProxyIDSlice()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, werr.New(werr.KindRpcRuntimeFault, opOpenContainer)
	}
	return &Container{Base: proxy.NewBase(k.Conn(), k.Allocator(), ids[0])}, nil
}

// OpenAsUser returns a read-only container over slot n's current
// user-visible content.
func (k *Keystore) OpenAsUser(n keystore.SlotNumber) (*Container, error) {
	return k.open(server.DetailKeystoreOpenAsUser, n)
}

// OpenAsOwner returns an exclusive writable container over slot n.
func (k *Keystore) OpenAsOwner(n keystore.SlotNumber) (*Container, error) {
	return k.open(server.DetailKeystoreOpenAsOwner, n)
}

// BeginTransaction reserves scope for atomic update, returning the
// transaction id commit/rollback address it by.
func (k *Keystore) BeginTransaction(scope []keystore.SlotNumber) (uint64, error) {
	args := wire.NewWriter()
	args.WriteUint32(uint32(len(scope)))
	for _, n := range scope {
		args.WriteUint64(uint64(n))
	}
	_, r, err := k.Call(server.DetailKeystoreBeginTransaction, nil, args)
	if err != nil {
		return 0, err
	}
	txID := r.ReadUint64()
	return txID, r.Err()
}

// CommitTransaction swaps every scope slot's shadow into its visible
// content, all at once from another client's point of view.
func (k *Keystore) CommitTransaction(txID uint64) error {
	args := wire.NewWriter()
	args.WriteUint64(txID)
	_, _, err := k.Call(server.DetailKeystoreCommitTransaction, nil, args)
	return err
}

// RollbackTransaction discards every scope slot's shadow.
func (k *Keystore) RollbackTransaction(txID uint64) error {
	args := wire.NewWriter()
	args.WriteUint64(txID)
	_, _, err := k.Call(server.DetailKeystoreRollbackTransaction, nil, args)
	return err
}

// Clear secure-erases slot n's payload.
func (k *Keystore) Clear(n keystore.SlotNumber) error {
	args := wire.NewWriter()
	args.WriteUint64(uint64(n))
	_, _, err := k.Call(server.DetailKeystoreClear, nil, args)
	return err
}

// Container is the client-side proxy for a TrustedContainer (spec.md
// §4.7 open_as_user/open_as_owner).
type Container struct {
	*proxy.Base
}

// Content returns the container's content properties.
func (c *Container) Content() (keystore.ContentProps, error) {
	_, r, err := c.Call(server.DetailContainerContent, nil, wire.NewWriter())
	if err != nil {
		return keystore.ContentProps{}, err
	}
	content := readContentPropsArg(r)
	return content, r.Err()
}

// Payload returns the container's opaque byte region.
func (c *Container) Payload() ([]byte, error) {
	_, r, err := c.Call(server.DetailContainerPayload, nil, wire.NewWriter())
	if err != nil {
		return nil, err
	}
	payload := r.ReadBytes()
	return payload, r.Err()
}

// Save overwrites the container's slot with content and payload. Only
// valid on a container returned by OpenAsOwner.
func (c *Container) Save(content keystore.ContentProps, payload []byte) error {
	args := wire.NewWriter()
	writeContentPropsArg(args, content)
	args.WriteBytes(payload)
	_, _, err := c.Call(server.DetailContainerSave, nil, args)
	return err
}

// Release explicitly closes the container, clearing a writable
// container's at-most-one-owner flag immediately rather than waiting
// for the proxy's eventual destroy-on-drop (spec.md §4.7 Close).
func (c *Container) Release() error {
	_, _, err := c.Call(server.DetailContainerClose, nil, wire.NewWriter())
	return err
}

func writeContentPropsArg(out *wire.Writer, content keystore.ContentProps) {
	out.WriteBytes(content.COUID.UUID.Bytes())
	out.WriteUint64(content.COUID.Stamp)
	out.WriteUint16(uint16(content.ObjectType))
	out.WriteUint32(content.AlgorithmID)
	out.WriteUint32(content.BitLength)
	out.WriteUint32(uint32(content.AllowedUsage))
}

func readContentPropsArg(in *wire.Reader) keystore.ContentProps {
	var content keystore.ContentProps
	b := in.ReadBytes()
	if id, err := uuid.FromBytes(b); err == nil {
		content.COUID.UUID = id
	}
	content.COUID.Stamp = in.ReadUint64()
	content.ObjectType = keystore.ObjectType(in.ReadUint16())
	content.AlgorithmID = in.ReadUint32()
	content.BitLength = in.ReadUint32()
	content.AllowedUsage = keystore.UsageFlags(in.ReadUint32())
	return content
}
