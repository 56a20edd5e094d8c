package server

import (
	uuid "github.com/satori/go.uuid"

	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/transport"
	"cryptdaemon.dev/cryptd/pkg/werr"
	"cryptdaemon.dev/cryptd/pkg/wire"
)

const opHandshake = "server.HandshakeProcessor.Process"

// ProviderBuilder builds the skeleton and backing Identifiable for a
// provider UUID, bound to id (the client's pre-allocated ProxyID from
// the handshake envelope's new-proxy-id list).
type ProviderBuilder func(id rpc.ProxyID) (built any, handle rpc.Identifiable, err error)

// HandshakeProcessor resolves the provider UUID argument of a
// BasicTaskHandshake/BasicTaskRegisterProvider envelope to a registered
// builder, and answers BasicTaskListProviders by UUID (spec.md §4.5,
// SPEC_FULL.md §8 "Provider handshake listing").
type HandshakeProcessor struct {
	builders map[uuid.UUID]ProviderBuilder
	order    []uuid.UUID
}

// NewHandshakeProcessor returns an empty processor ready for Register
// calls at daemon startup.
func NewHandshakeProcessor() *HandshakeProcessor {
	return &HandshakeProcessor{builders: make(map[uuid.UUID]ProviderBuilder)}
}

// Register binds a provider UUID to the builder that constructs its
// skeleton on demand. Call once per provider before Runtime starts
// accepting connections.
func (h *HandshakeProcessor) Register(id uuid.UUID, builder ProviderBuilder) {
	if _, exists := h.builders[id]; !exists {
		h.order = append(h.order, id)
	}
	h.builders[id] = builder
}

// Process implements the handshake phase of the ClientEndpoint state
// machine: BasicTaskListProviders needs no target or new-proxy-id,
// BasicTaskHandshake/BasicTaskRegisterProvider read a provider UUID
// argument and bind its skeleton under NewProxies[0], registered as a
// borrowed reference (the provider outlives the endpoint, per spec.md
// §4.5 "never dropped except at shutdown").
func (h *HandshakeProcessor) Process(e *ClientEndpoint, cred transport.Credentials, env rpc.Envelope, in *wire.Reader) (*wire.Writer, error) {
	out := wire.NewWriter()

	switch env.Basic {
	case rpc.BasicTaskListProviders:
		out.WriteUint8(uint8(rpc.ResponseTagValue))
		out.WriteUint32(uint32(len(h.order)))
		for _, id := range h.order {
			writeUUID(out, id)
		}
		if err := out.Err(); err != nil {
			return nil, err
		}
		return out, nil

	case rpc.BasicTaskHandshake, rpc.BasicTaskRegisterProvider:
		providerUUID := readUUID(in)
		if err := in.Err(); err != nil {
			return nil, err
		}
		if len(env.NewProxies) == 0 {
			return nil, werr.New(werr.KindRpcInvalidArgument, opHandshake)
		}
		builder, ok := h.builders[providerUUID]
		if !ok {
			return nil, werr.New(werr.KindUnknownIdentifier, opHandshake)
		}

		id := env.NewProxies[0]
		built, handle, err := builder(id)
		if err != nil {
			return nil, err
		}
		if err := e.Objects().RegisterBorrowed(id, handle); err != nil {
			return nil, err
		}
		if err := e.Skeletons().Register(id, built); err != nil {
			e.Objects().Unregister(id)
			return nil, err
		}

		out.WriteUint8(uint8(rpc.ResponseTagSkeletonCreated))
		out.WriteProxyIDSlice([]rpc.ProxyID{id})
		if err := out.Err(); err != nil {
			return nil, err
		}
		return out, nil

	default:
		return nil, werr.New(werr.KindRpcUnknownTask, opHandshake)
	}
}
