package server

import (
	"cryptdaemon.dev/cryptd/pkg/registry"
	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/skeleton"
	"cryptdaemon.dev/cryptd/pkg/transport"
	"cryptdaemon.dev/cryptd/pkg/werr"
	"cryptdaemon.dev/cryptd/pkg/wire"
)

const opDispatchMessage = "server.MessageProcessor.Process"

// MessageProcessor implements the Ready-state half of the ClientEndpoint
// state machine: envelope steps 1-2 of spec.md §4.3 (look up the
// target's skeleton, attach caller_uid) happen here, then dispatch hands
// off to the target's own Base.ProcessMessage for steps 3-7.
type MessageProcessor struct{}

// NewMessageProcessor returns a stateless MessageProcessor; all state
// needed to dispatch lives on the ClientEndpoint and its registries.
func NewMessageProcessor() *MessageProcessor { return &MessageProcessor{} }

// Process handles BasicTaskMethodCall against the envelope's target
// ProxyID. BasicTaskDestroy is handled separately by Destroy: it is
// one-way (spec.md §4.4) and never produces a response.
func (m *MessageProcessor) Process(e *ClientEndpoint, cred transport.Credentials, env rpc.Envelope, in *wire.Reader) (*wire.Writer, error) {
	switch env.Basic {
	case rpc.BasicTaskMethodCall:
		return m.dispatchCall(e, cred, env, in)
	default:
		return nil, werr.New(werr.KindRpcUnknownTask, opDispatchMessage)
	}
}

func (m *MessageProcessor) dispatchCall(e *ClientEndpoint, cred transport.Credentials, env rpc.Envelope, in *wire.Reader) (*wire.Writer, error) {
	if !env.HasDetail {
		return nil, werr.New(werr.KindRpcInvalidArgument, opDispatchMessage)
	}

	inst, err := e.Skeletons().Lookup(env.Target)
	if err != nil {
		return nil, err
	}
	dispatcher, ok := inst.(skeleton.Dispatcher)
	if !ok {
		return nil, werr.New(werr.KindRpcUnknownObjectIdentifier, opDispatchMessage)
	}

	ctx := &skeleton.CallContext{
		CallerUID:  cred.UID,
		CallerPID:  cred.PID,
		Objects:    e.Objects(),
		Skeletons:  e.Skeletons(),
		NewProxies: env.NewProxies,
		EndpointID: e.ID(),
	}

	out := wire.NewWriter()
	if err := dispatcher.ProcessMessage(ctx, env.Detail, in, out); err != nil {
		return nil, err
	}
	if err := out.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Destroy drops the target's skeleton and, for an owned target, its
// object registry entry, invoking Close() if the object's handle
// exposes one (spec.md §4.4, client-initiated destroy message). A
// borrowed entry stays registered. It never returns a response to
// write: the client's proxy destructor sends BasicTaskDestroy and
// moves on without reading a reply, so producing one here would sit
// unread in the connection's buffer and desynchronize the next
// request/response pairing on any proxy sharing that connection.
func (m *MessageProcessor) Destroy(e *ClientEndpoint, env rpc.Envelope) error {
	obj, ownership, err := e.Objects().Lookup(env.Target)
	if err != nil {
		return err
	}
	if ownership == registry.Owned {
		if closer, ok := obj.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				return err
			}
		}
		e.Objects().Unregister(env.Target)
	}
	e.Skeletons().Unregister(env.Target)
	return nil
}
