package server

import (
	"crypto/x509"

	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/skeleton"
	"cryptdaemon.dev/cryptd/pkg/werr"
	"cryptdaemon.dev/cryptd/pkg/wire"
	"cryptdaemon.dev/cryptd/pkg/x509prov"
)

// DetailTask values for the x509prov.Provider interface (spec.md §4.3,
// §6). Provisioning is the one restricted method: it is gated on
// caller_uid matching one of the two configured privileged ids rather
// than skeleton.Base's single-AllowedUID check, since
// x509prov.AccessConfig names two (spec.md §6's caConnectorId and
// trustmasterId).
const (
	DetailX509Parse rpc.DetailTask = iota + 1
	DetailX509Verify
	DetailX509StorageRoot
	DetailX509Provision
)

const opX509Parse = "server.x509.Parse"
const opX509Verify = "server.x509.Verify"
const opX509Provision = "server.x509.Provision"

type x509Handle struct {
	id       rpc.ProxyID
	provider x509prov.Provider
	access   x509prov.AccessConfig
}

func (h *x509Handle) ProxyID() rpc.ProxyID { return h.id }

// NewX509Skeleton builds the skeleton bound to the registered X.509
// provider, reached via BasicTaskHandshake/BasicTaskRegisterProvider.
func NewX509Skeleton(id rpc.ProxyID, provider x509prov.Provider, access x509prov.AccessConfig) *skeleton.Base[*x509Handle] {
	handle := &x509Handle{id: id, provider: provider, access: access}
	b := skeleton.NewBase[*x509Handle](id, handle)

	b.Methods[DetailX509Parse] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		der := in.ReadBytes()
		if err := in.Err(); err != nil {
			return err
		}
		cert, err := provider.Parse(der)
		if err != nil {
			return werr.Wrap(werr.KindInvalidArgument, opX509Parse, err)
		}
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		out.WriteBytes(cert.Raw)
		return out.Err()
	}

	b.Methods[DetailX509Verify] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		der := in.ReadBytes()
		if err := in.Err(); err != nil {
			return err
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return werr.Wrap(werr.KindInvalidArgument, opX509Verify, err)
		}
		roots := x509.NewCertPool()
		verifyErr := provider.Verify(cert, roots)
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		out.WriteBool(verifyErr == nil)
		return out.Err()
	}

	b.Methods[DetailX509StorageRoot] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		out.WriteString(provider.StorageRoot())
		return out.Err()
	}

	b.Methods[DetailX509Provision] = func(ctx *skeleton.CallContext, in *wire.Reader, out *wire.Writer) error {
		// Restricted method (spec.md §4.3): checked before anything is
		// read off the wire, and the provider is never invoked on
		// mismatch.
		if err := access.RequireProvisioningAccess(ctx.CallerUID); err != nil {
			return err
		}
		der := in.ReadBytes()
		if err := in.Err(); err != nil {
			return err
		}
		if _, err := provider.Parse(der); err != nil {
			return werr.Wrap(werr.KindInvalidArgument, opX509Provision, err)
		}
		out.WriteUint8(uint8(rpc.ResponseTagVoid))
		return out.Err()
	}

	return b
}
