package server

import (
	"cryptdaemon.dev/cryptd/pkg/keystore"
	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/skeleton"
	"cryptdaemon.dev/cryptd/pkg/wire"
)

// DetailTask values for the TrustedContainer interface (spec.md §4.7).
const (
	DetailContainerContent rpc.DetailTask = iota + 1
	DetailContainerPayload
	DetailContainerSave
	DetailContainerClose
)

// containerHandle adapts *keystore.TrustedContainer to rpc.Identifiable.
// It is always registered as an owned out-object: the client's destroy
// message (or disconnect) is the only thing that releases the
// at-most-one-owner flag on a writable container.
type containerHandle struct {
	id rpc.ProxyID
	tc *keystore.TrustedContainer
}

func (h *containerHandle) ProxyID() rpc.ProxyID { return h.id }

// Close satisfies the interface ClientEndpoint.close() probes for when
// it tears down every owned object on disconnect.
func (h *containerHandle) Close() error {
	return h.tc.Close()
}

func writeContentProps(out *wire.Writer, content keystore.ContentProps) {
	writeUUID(out, content.COUID.UUID)
	out.WriteUint64(content.COUID.Stamp)
	out.WriteUint16(uint16(content.ObjectType))
	out.WriteUint32(content.AlgorithmID)
	out.WriteUint32(content.BitLength)
	out.WriteUint32(uint32(content.AllowedUsage))
}

func readContentProps(in *wire.Reader) keystore.ContentProps {
	var content keystore.ContentProps
	content.COUID.UUID = readUUID(in)
	content.COUID.Stamp = in.ReadUint64()
	content.ObjectType = keystore.ObjectType(in.ReadUint16())
	content.AlgorithmID = in.ReadUint32()
	content.BitLength = in.ReadUint32()
	content.AllowedUsage = keystore.UsageFlags(in.ReadUint32())
	return content
}

// NewContainerSkeleton builds the skeleton bound to a just-opened
// TrustedContainer (spec.md §4.7 open_as_user / open_as_owner).
func NewContainerSkeleton(id rpc.ProxyID, handle *containerHandle) *skeleton.Base[*containerHandle] {
	b := skeleton.NewBase[*containerHandle](id, handle)

	b.Methods[DetailContainerContent] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		writeContentProps(out, handle.tc.Content())
		return out.Err()
	}

	b.Methods[DetailContainerPayload] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		out.WriteBytes(handle.tc.Payload())
		return out.Err()
	}

	b.Methods[DetailContainerSave] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		content := readContentProps(in)
		payload := in.ReadBytes()
		if err := in.Err(); err != nil {
			return err
		}
		if err := handle.tc.Save(content, payload); err != nil {
			return err
		}
		out.WriteUint8(uint8(rpc.ResponseTagVoid))
		return out.Err()
	}

	b.Methods[DetailContainerClose] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		if err := handle.tc.Close(); err != nil {
			return err
		}
		ctx.Objects.Unregister(handle.id)
		ctx.Skeletons.Unregister(handle.id)
		out.WriteUint8(uint8(rpc.ResponseTagVoid))
		return out.Err()
	}

	return b
}
