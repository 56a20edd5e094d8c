package server

import (
	"cryptdaemon.dev/cryptd/pkg/crypto"
	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/skeleton"
	"cryptdaemon.dev/cryptd/pkg/wire"
)

// DetailTask values for the crypto.Provider interface. Crypto operations
// themselves are out of scope (SPEC_FULL.md Non-goals: "a cryptographic
// library of our own") — the only thing a client does with a registered
// crypto provider handle is read back its identity, matching spec.md
// §9's worked handshake example.
const (
	DetailCryptoUUID rpc.DetailTask = iota + 1
	DetailCryptoVersion
)

type cryptoHandle struct {
	id       rpc.ProxyID
	provider crypto.Provider
	buildTime uint32
}

func (h *cryptoHandle) ProxyID() rpc.ProxyID { return h.id }

// NewCryptoSkeleton builds the skeleton bound to a registered crypto
// provider, reached via BasicTaskHandshake/BasicTaskRegisterProvider.
func NewCryptoSkeleton(id rpc.ProxyID, provider crypto.Provider, buildTime uint32) *skeleton.Base[*cryptoHandle] {
	handle := &cryptoHandle{id: id, provider: provider, buildTime: buildTime}
	b := skeleton.NewBase[*cryptoHandle](id, handle)

	b.Methods[DetailCryptoUUID] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		id := provider.UUID()
		writeUUID(out, id)
		return out.Err()
	}

	b.Methods[DetailCryptoVersion] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		pv := crypto.ProviderVersion{Version: provider.Version(), BuildTime: buildTime}
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		out.WriteUint64(pv.Encode())
		return out.Err()
	}

	return b
}
