// Package crypto defines the opaque crypto-provider plugin surface the
// skeletons dispatch to. The actual primitives (ciphers, hashes,
// signatures, RNG, KDF, key agreement) are external collaborators —
// deliberately out of scope — so this package only names the contract
// a provider must satisfy and the version-negotiation handshake
// (spec.md §1, §9).
package crypto

import (
	"github.com/blang/semver"
	uuid "github.com/satori/go.uuid"

	"cryptdaemon.dev/cryptd/pkg/keystore"
)

// Provider is a registered crypto provider: an opaque implementation
// behind a UUID, capable of reporting its own version and clearing a
// slot it previously populated.
type Provider interface {
	UUID() uuid.UUID
	Version() semver.Version
	OnClear(slot *keystore.Slot) error
}

// Factory builds or looks up a Provider by UUID, used by the
// handshake processor's registerCryptoProvider task (spec.md §4.5).
type Factory interface {
	Lookup(providerUUID uuid.UUID) (Provider, bool)
}

// StaticFactory is a Factory over a fixed, construction-time set of
// providers — the shape every provider plugin in this deployment takes
// since hot-plugging is explicitly a non-goal (spec.md §1).
type StaticFactory struct {
	providers map[uuid.UUID]Provider
}

// NewStaticFactory builds a factory from a fixed provider list.
func NewStaticFactory(providers ...Provider) *StaticFactory {
	f := &StaticFactory{providers: make(map[uuid.UUID]Provider, len(providers))}
	for _, p := range providers {
		f.providers[p.UUID()] = p
	}
	return f
}

func (f *StaticFactory) Lookup(providerUUID uuid.UUID) (Provider, bool) {
	p, ok := f.providers[providerUUID]
	return p, ok
}

// ProviderVersion packs the major/minor/patch/build fields the worked
// example in spec.md §9 encodes on the wire as
// major<<16|minor<<8|patch in the high word and the build timestamp in
// the low word, built from a semver.Version the same way
// daemon/client/client.go's RequestKrdVersionOver parses its reply.
type ProviderVersion struct {
	Version   semver.Version
	BuildTime uint32
}

// Encode packs the version into the single 64-bit wire value spec.md
// §9's getProviderVersion example shows: high word major/minor/patch
// (0x00010002 for 1.0.2), low word the build timestamp (0xC0DEC0DE).
func (v ProviderVersion) Encode() uint64 {
	versionWord := uint32(v.Version.Major)<<16 | uint32(v.Version.Minor)<<8 | uint32(v.Version.Patch)
	return uint64(versionWord)<<32 | uint64(v.BuildTime)
}
