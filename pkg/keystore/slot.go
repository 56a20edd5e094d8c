package keystore

import (
	"sync/atomic"

	uuid "github.com/satori/go.uuid"
)

// shadow holds a pending transactional write to a slot: content is
// visible to other readers only once the owning transaction commits.
type shadow struct {
	txID    uint64
	content ContentProps
	payload []byte
}

// Slot is one addressable cell of the key-storage provider's table
// (spec.md §3). ownerTCExists is accessed from the transport goroutine
// while a container lives and is therefore a plain atomic flag rather
// than something requiring the provider's coarse lock.
type Slot struct {
	Number       SlotNumber
	UUID         uuid.UUID
	ProviderUUID uuid.UUID
	Prototype    PrototypeProps

	content    ContentProps
	payload    []byte
	hasContent bool
	shadow     *shadow

	ownerTCExists int32
}

func newSlot(number SlotNumber, id, providerUUID uuid.UUID, proto PrototypeProps) *Slot {
	return &Slot{Number: number, UUID: id, ProviderUUID: providerUUID, Prototype: proto}
}

// tryAcquireOwner atomically sets ownerTCExists, returning false if it
// was already set (spec.md §4.7 "at most one owner trusted container").
func (s *Slot) tryAcquireOwner() bool {
	return atomic.CompareAndSwapInt32(&s.ownerTCExists, 0, 1)
}

func (s *Slot) releaseOwner() {
	atomic.StoreInt32(&s.ownerTCExists, 0)
}

// userVisibleContent returns the content a non-owner reader sees:
// the committed content, never a pending shadow write (spec.md §4.7
// is_empty / §8 property 5).
func (s *Slot) userVisibleContent() (ContentProps, []byte, bool) {
	return s.content, s.payload, s.hasContent
}
