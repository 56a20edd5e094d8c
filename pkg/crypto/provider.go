package crypto

import (
	"github.com/blang/semver"
	uuid "github.com/satori/go.uuid"

	"cryptdaemon.dev/cryptd/pkg/keystore"
)

// StaticProvider is a minimal Provider stand-in: it answers its own
// identity and version and has no OnClear veto of its own. Real
// provider plugins (the actual cipher/hash/signature engines) are
// external collaborators per spec.md §1; this type exists so a
// deployment has a concrete Provider to register during handshake
// before a real plugin is wired in.
type StaticProvider struct {
	id      uuid.UUID
	version semver.Version
}

// NewStaticProvider returns a Provider identified by id, reporting
// version on getProviderVersion.
func NewStaticProvider(id uuid.UUID, version semver.Version) *StaticProvider {
	return &StaticProvider{id: id, version: version}
}

var _ Provider = (*StaticProvider)(nil)

func (p *StaticProvider) UUID() uuid.UUID         { return p.id }
func (p *StaticProvider) Version() semver.Version { return p.version }

// OnClear has no veto of its own; a real provider plugin would refuse
// or react to clearing a slot it populated (spec.md §4.7 "clear").
func (p *StaticProvider) OnClear(slot *keystore.Slot) error { return nil }
