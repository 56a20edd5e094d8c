package server

import (
	uuid "github.com/satori/go.uuid"

	"cryptdaemon.dev/cryptd/pkg/keystore"
	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/skeleton"
	"cryptdaemon.dev/cryptd/pkg/wire"
)

// DetailTask values for the key-storage provider interface (spec.md
// §4.7). Numeric values are only unique within this interface's method
// table, per pkg/rpc.DetailTask's doc comment.
const (
	DetailKeystoreFindSlotByUUID rpc.DetailTask = iota + 1
	DetailKeystoreFindObject
	DetailKeystoreIsEmpty
	DetailKeystoreOpenAsUser
	DetailKeystoreOpenAsOwner
	DetailKeystoreBeginTransaction
	DetailKeystoreCommitTransaction
	DetailKeystoreRollbackTransaction
	DetailKeystoreClear
	DetailKeystoreListSlots
	DetailKeystoreExport
)

// keystoreHandle adapts *keystore.Provider to rpc.Identifiable so it
// can live in a ClientEndpoint's object registry under the ProxyID the
// client bound during handshake.
type keystoreHandle struct {
	id       rpc.ProxyID
	provider *keystore.Provider
}

func (h *keystoreHandle) ProxyID() rpc.ProxyID { return h.id }

func readUUID(in *wire.Reader) uuid.UUID {
	b := in.ReadBytes()
	if in.Err() != nil {
		return uuid.Nil
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func writeUUID(out *wire.Writer, id uuid.UUID) {
	out.WriteBytes(id[:])
}

// NewKeystoreSkeleton builds the top-level skeleton the handshake
// processor binds a client's key-storage provider handle to.
func NewKeystoreSkeleton(id rpc.ProxyID, provider *keystore.Provider) *skeleton.Base[*keystoreHandle] {
	impl := &keystoreHandle{id: id, provider: provider}
	b := skeleton.NewBase[*keystoreHandle](id, impl)

	b.Methods[DetailKeystoreFindSlotByUUID] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		slotUUID := readUUID(in)
		if err := in.Err(); err != nil {
			return err
		}
		n := provider.FindSlotByUUID(slotUUID)
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		out.WriteUint64(uint64(n))
		return out.Err()
	}

	b.Methods[DetailKeystoreListSlots] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		numbers := provider.ListSlotNumbers()
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		out.WriteUint32(uint32(len(numbers)))
		for _, n := range numbers {
			out.WriteUint64(uint64(n))
		}
		return out.Err()
	}

	b.Methods[DetailKeystoreExport] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		buf, err := provider.Export()
		if err != nil {
			return err
		}
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		out.WriteBytes(buf)
		return out.Err()
	}

	b.Methods[DetailKeystoreFindObject] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		couid := readUUID(in)
		typ := keystore.ObjectType(in.ReadUint16())
		hasFilter := in.ReadBool()
		var filter *uuid.UUID
		if hasFilter {
			f := readUUID(in)
			filter = &f
		}
		previous := keystore.SlotNumber(in.ReadUint64())
		if err := in.Err(); err != nil {
			return err
		}
		n := provider.FindObject(couid, typ, filter, previous)
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		out.WriteUint64(uint64(n))
		return out.Err()
	}

	b.Methods[DetailKeystoreIsEmpty] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		n := keystore.SlotNumber(in.ReadUint64())
		if err := in.Err(); err != nil {
			return err
		}
		empty, err := provider.IsEmpty(n)
		if err != nil {
			return err
		}
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		out.WriteBool(empty)
		return out.Err()
	}

	b.Methods[DetailKeystoreOpenAsUser] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		n := keystore.SlotNumber(in.ReadUint64())
		if err := in.Err(); err != nil {
			return err
		}
		tc, err := provider.OpenAsUser(n, ctx.CallerUID)
		if err != nil {
			return err
		}
		return registerContainer(ctx, out, tc)
	}

	b.Methods[DetailKeystoreOpenAsOwner] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		n := keystore.SlotNumber(in.ReadUint64())
		if err := in.Err(); err != nil {
			return err
		}
		tc, err := provider.OpenAsOwner(n, ctx.CallerUID)
		if err != nil {
			return err
		}
		return registerContainer(ctx, out, tc)
	}

	b.Methods[DetailKeystoreBeginTransaction] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		n := in.ReadUint32()
		scope := make([]keystore.SlotNumber, 0, n)
		for i := uint32(0); i < n; i++ {
			scope = append(scope, keystore.SlotNumber(in.ReadUint64()))
		}
		if err := in.Err(); err != nil {
			return err
		}
		txID, err := provider.BeginTransaction(scope, ctx.CallerUID, ctx.EndpointID)
		if err != nil {
			return err
		}
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		out.WriteUint64(txID)
		return out.Err()
	}

	b.Methods[DetailKeystoreCommitTransaction] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		txID := in.ReadUint64()
		if err := in.Err(); err != nil {
			return err
		}
		if err := provider.CommitTransaction(txID); err != nil {
			return err
		}
		out.WriteUint8(uint8(rpc.ResponseTagVoid))
		return out.Err()
	}

	b.Methods[DetailKeystoreRollbackTransaction] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		txID := in.ReadUint64()
		if err := in.Err(); err != nil {
			return err
		}
		if err := provider.RollbackTransaction(txID); err != nil {
			return err
		}
		out.WriteUint8(uint8(rpc.ResponseTagVoid))
		return out.Err()
	}

	b.Methods[DetailKeystoreClear] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		n := keystore.SlotNumber(in.ReadUint64())
		if err := in.Err(); err != nil {
			return err
		}
		if err := provider.Clear(n, ctx.CallerUID); err != nil {
			return err
		}
		out.WriteUint8(uint8(rpc.ResponseTagVoid))
		return out.Err()
	}

	return b
}

// registerContainer allocates the next client-supplied ProxyID, builds
// the container's skeleton bound to it, and registers both the handle
// and the skeleton before replying ResponseTagSkeletonCreated (spec.md
// §4.3 step 5).
func registerContainer(ctx *skeleton.CallContext, out *wire.Writer, tc *keystore.TrustedContainer) error {
	id, err := ctx.AllocateProxyID()
	if err != nil {
		return err
	}
	handle := &containerHandle{id: id, tc: tc}
	built := NewContainerSkeleton(id, handle)
	if err := ctx.Objects.RegisterOwned(id, handle); err != nil {
		return err
	}
	if err := ctx.Skeletons.Register(id, built); err != nil {
		ctx.Objects.Unregister(id)
		return err
	}
	out.WriteUint8(uint8(rpc.ResponseTagSkeletonCreated))
	out.WriteProxyIDSlice([]rpc.ProxyID{id})
	return out.Err()
}
