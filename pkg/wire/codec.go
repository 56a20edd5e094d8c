// Package wire implements the daemon's binary codec: fixed-width
// little-endian integers, length-prefixed byte regions and strings,
// tagged optionals, homogeneous sequences, and the request/response
// Envelope, per SPEC_FULL.md §6.1.
package wire

import (
	"encoding/binary"
	"io"

	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/werr"
)

const opRead = "wire.Read"
const opWrite = "wire.Write"

// maxReasonableSize caps a single declared length or element count so
// a corrupt or hostile prefix cannot drive an enormous allocation
// (ReadMessage and ReadProxyIDSlice check it before allocating).
const maxReasonableSize = 64 << 20 // 64 MiB

// Writer accumulates a single outgoing message. Every Write* method
// appends to the internal buffer; errors are sticky so callers can
// chain writes and check err once at the end.
type Writer struct {
	buf []byte
	err error
}

// NewWriter returns an empty Writer ready for use.
func NewWriter() *Writer {
	return &Writer{}
}

// Err returns the first error encountered by any Write* call, if any.
func (w *Writer) Err() error {
	return w.err
}

// Bytes returns the accumulated message. Only meaningful once Err() is nil.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) fail(kind werr.Kind, op string) {
	if w.err == nil {
		w.err = werr.New(kind, op)
	}
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, v)
}

// WriteUint32 appends v little-endian.
func (w *Writer) WriteUint32(v uint32) {
	if w.err != nil {
		return
	}
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// WriteUint64 appends v little-endian.
func (w *Writer) WriteUint64(v uint64) {
	if w.err != nil {
		return
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// WriteUint16 appends v little-endian.
func (w *Writer) WriteUint16(v uint16) {
	if w.err != nil {
		return
	}
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// WriteBytes writes len(b):u32 followed by b.
func (w *Writer) WriteBytes(b []byte) {
	if w.err != nil {
		return
	}
	w.WriteUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString writes s as a non-null-terminated, length-prefixed UTF-8 byte region.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

// WriteBool writes a single presence-style byte: 1 for true, 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// WriteProxyID writes an object reference as its ProxyID only — the
// referenced value is never transmitted, per SPEC_FULL.md §6.1.
func (w *Writer) WriteProxyID(id rpc.ProxyID) {
	w.WriteUint64(uint64(id))
}

// WriteOptionalBytes writes a 1-byte present/null tag followed by the
// payload when present.
func (w *Writer) WriteOptionalBytes(b *[]byte) {
	if w.err != nil {
		return
	}
	if b == nil {
		w.WriteUint8(tagNull)
		return
	}
	w.WriteUint8(tagPresent)
	w.WriteBytes(*b)
}

// WriteProxyIDSlice writes len(ids):u32 followed by each ProxyID.
func (w *Writer) WriteProxyIDSlice(ids []rpc.ProxyID) {
	if w.err != nil {
		return
	}
	w.WriteUint32(uint32(len(ids)))
	for _, id := range ids {
		w.WriteProxyID(id)
	}
}

// WriteEnvelope writes the fixed envelope prefix: BasicTask, a
// has-detail tag plus DetailTask, target ProxyID, then the
// new-proxy-id list. The argument tuple, if any, follows separately.
func (w *Writer) WriteEnvelope(e rpc.Envelope) {
	if w.err != nil {
		return
	}
	w.WriteUint8(uint8(e.Basic))
	w.WriteBool(e.HasDetail)
	w.WriteUint16(uint16(e.Detail))
	w.WriteProxyID(e.Target)
	w.WriteProxyIDSlice(e.NewProxies)
}

const (
	tagNull    = 0
	tagPresent = 1
)

// Reader consumes a single incoming message. Every Read* method
// advances an internal cursor; errors are sticky. A declared size that
// would read past the remaining buffer fails with
// werr.KindInsufficientCapacity without allocating.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader wraps buf for reading. buf is not copied; callers must not
// mutate it while the Reader is in use.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first error encountered by any Read* call, if any.
func (r *Reader) Err() error {
	return r.err
}

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) fail(kind werr.Kind, op string) {
	if r.err == nil {
		r.err = werr.New(kind, op)
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > r.Remaining() {
		r.fail(werr.KindInsufficientCapacity, opRead)
		return nil
	}
	if n < 0 || n > maxReasonableSize {
		r.fail(werr.KindUnsupportedFormat, opRead)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadUint64 reads a little-endian uint64.
func (r *Reader) ReadUint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// ReadBytes reads a len:u32-prefixed byte region into a freshly
// allocated, owned buffer.
func (r *Reader) ReadBytes() []byte {
	n := r.ReadUint32()
	if r.err != nil {
		return nil
	}
	region := r.take(int(n))
	if region == nil {
		return nil
	}
	owned := make([]byte, len(region))
	copy(owned, region)
	return owned
}

// ReadString reads a length-prefixed UTF-8 byte region into a string.
func (r *Reader) ReadString() string {
	b := r.ReadBytes()
	if r.err != nil {
		return ""
	}
	return string(b)
}

// ReadBool reads a single presence-style byte.
func (r *Reader) ReadBool() bool {
	return r.ReadUint8() != 0
}

// ReadProxyID reads an object reference's ProxyID.
func (r *Reader) ReadProxyID() rpc.ProxyID {
	return rpc.ProxyID(r.ReadUint64())
}

// ReadOptionalBytes reads a 1-byte present/null tag and, when present,
// the payload; returns nil when null or on error.
func (r *Reader) ReadOptionalBytes() *[]byte {
	tag := r.ReadUint8()
	if r.err != nil {
		return nil
	}
	switch tag {
	case tagNull:
		return nil
	case tagPresent:
		b := r.ReadBytes()
		if r.err != nil {
			return nil
		}
		return &b
	default:
		r.fail(werr.KindUnsupportedFormat, opRead)
		return nil
	}
}

// ReadProxyIDSlice reads a len:u32-prefixed sequence of ProxyIDs.
func (r *Reader) ReadProxyIDSlice() []rpc.ProxyID {
	n := r.ReadUint32()
	if r.err != nil {
		return nil
	}
	if int(n) > maxReasonableSize {
		r.fail(werr.KindUnsupportedFormat, opRead)
		return nil
	}
	ids := make([]rpc.ProxyID, 0, n)
	for i := uint32(0); i < n; i++ {
		ids = append(ids, r.ReadProxyID())
		if r.err != nil {
			return nil
		}
	}
	return ids
}

// ReadEnvelope reads the fixed envelope prefix written by WriteEnvelope.
func (r *Reader) ReadEnvelope() rpc.Envelope {
	var e rpc.Envelope
	e.Basic = rpc.BasicTask(r.ReadUint8())
	e.HasDetail = r.ReadBool()
	e.Detail = rpc.DetailTask(r.ReadUint16())
	e.Target = r.ReadProxyID()
	e.NewProxies = r.ReadProxyIDSlice()
	return e
}

// WriteMessage frames msg with a u32 length prefix and writes it to w —
// the length-preserved delivery the transport assumes (SPEC_FULL.md §6).
func WriteMessage(w io.Writer, msg []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(msg)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return werr.Wrap(werr.KindRpcRuntimeFault, opWrite, err)
	}
	if _, err := w.Write(msg); err != nil {
		return werr.Wrap(werr.KindRpcRuntimeFault, opWrite, err)
	}
	return nil
}

// ReadMessage reads one length-prefixed message from r.
func ReadMessage(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, werr.Wrap(werr.KindRpcRuntimeFault, opRead, err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxReasonableSize {
		return nil, werr.New(werr.KindRpcInsufficientCapacity, opRead)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, werr.Wrap(werr.KindRpcInsufficientCapacity, opRead, err)
	}
	return msg, nil
}
