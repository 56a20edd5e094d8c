package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/werr"
)

func TestRoundTripPrimitives(t *testing.T) {
	w := NewWriter()
	w.WriteUint8(0xAB)
	w.WriteUint16(0xBEEF)
	w.WriteUint32(0xC0DEC0DE)
	w.WriteUint64(0x1122334455667788)
	w.WriteBytes([]byte{0x00, 0x11, 0x22})
	w.WriteString("hello, daemon")
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteProxyID(rpc.ProxyID(0x0A))
	present := []byte{0xDE, 0xAD}
	w.WriteOptionalBytes(&present)
	w.WriteOptionalBytes(nil)
	w.WriteProxyIDSlice([]rpc.ProxyID{1, 2, 3})
	require.NoError(t, w.Err())

	r := NewReader(w.Bytes())
	require.Equal(t, uint8(0xAB), r.ReadUint8())
	require.Equal(t, uint16(0xBEEF), r.ReadUint16())
	require.Equal(t, uint32(0xC0DEC0DE), r.ReadUint32())
	require.Equal(t, uint64(0x1122334455667788), r.ReadUint64())
	require.Equal(t, []byte{0x00, 0x11, 0x22}, r.ReadBytes())
	require.Equal(t, "hello, daemon", r.ReadString())
	require.Equal(t, true, r.ReadBool())
	require.Equal(t, false, r.ReadBool())
	require.Equal(t, rpc.ProxyID(0x0A), r.ReadProxyID())
	require.Equal(t, &present, r.ReadOptionalBytes())
	require.Nil(t, r.ReadOptionalBytes())
	require.Equal(t, []rpc.ProxyID{1, 2, 3}, r.ReadProxyIDSlice())
	require.NoError(t, r.Err())
	require.Equal(t, 0, r.Remaining())
}

func TestRoundTripEnvelope(t *testing.T) {
	e := rpc.Envelope{
		Basic:      rpc.BasicTaskMethodCall,
		Detail:     rpc.DetailTask(7),
		HasDetail:  true,
		Target:     rpc.ProxyID(0x0A),
		NewProxies: []rpc.ProxyID{0x0B, 0x0C},
	}
	w := NewWriter()
	w.WriteEnvelope(e)
	require.NoError(t, w.Err())

	r := NewReader(w.Bytes())
	got := r.ReadEnvelope()
	require.NoError(t, r.Err())
	require.Equal(t, e, got)
}

func TestTruncatedInputFailsInsufficientCapacity(t *testing.T) {
	w := NewWriter()
	w.WriteBytes([]byte("0123456789"))
	full := w.Bytes()

	// Truncate after the length prefix so the declared size exceeds
	// what remains.
	truncated := full[:len(full)-5]
	r := NewReader(truncated)
	_ = r.ReadBytes()
	require.Error(t, r.Err())
	require.Equal(t, werr.KindInsufficientCapacity, werr.KindOf(r.Err()))
}

func TestUnsupportedFormatOnBadOptionalTag(t *testing.T) {
	r := NewReader([]byte{0x02})
	_ = r.ReadOptionalBytes()
	require.Error(t, r.Err())
	require.Equal(t, werr.KindUnsupportedFormat, werr.KindOf(r.Err()))
}

func TestDeclaredLengthBeyondBufferFailsWithoutAllocating(t *testing.T) {
	// A declared argument length of 0xFFFFFFFF in a tiny buffer must
	// fail fast, per the spec's literal "Invalid envelope" scenario.
	w := NewWriter()
	w.WriteUint32(0xFFFFFFFF)
	r := NewReader(w.Bytes())
	_ = r.ReadBytes()
	require.Error(t, r.Err())
	require.Equal(t, werr.KindInsufficientCapacity, werr.KindOf(r.Err()))
}

func TestMessageFraming(t *testing.T) {
	var buf fakeBuffer
	payload := []byte("envelope-bytes")
	require.NoError(t, WriteMessage(&buf, payload))
	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

type fakeBuffer struct {
	data []byte
}

func (b *fakeBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *fakeBuffer) Read(p []byte) (int, error) {
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}
