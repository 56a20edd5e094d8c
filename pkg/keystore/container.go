package keystore

import (
	"sync"

	"cryptdaemon.dev/cryptd/pkg/werr"
)

// TrustedContainer is a scoped handle to a slot's content, granting
// either a read-only snapshot (OpenAsUser) or exclusive write access
// (OpenAsOwner). Closing a writable container clears the slot's
// owner-trusted-container flag.
type TrustedContainer struct {
	provider *Provider
	slot     *Slot
	writable bool

	content ContentProps
	payload []byte

	closeOnce sync.Once
}

// Content returns the snapshot content a read-only container was
// opened with, or the slot's current content for a writable container.
func (tc *TrustedContainer) Content() ContentProps {
	if tc.writable {
		content, _, _ := tc.slot.userVisibleContent()
		return content
	}
	return tc.content
}

// Payload mirrors Content for the slot's opaque byte region.
func (tc *TrustedContainer) Payload() []byte {
	if tc.writable {
		_, payload, _ := tc.slot.userVisibleContent()
		return payload
	}
	return tc.payload
}

const opContainerSave = "keystore.TrustedContainer.Save"

// Save overwrites the container's slot with content and payload
// (spec.md §4.7 save_copy). Only valid on a container opened as owner.
func (tc *TrustedContainer) Save(content ContentProps, payload []byte) error {
	if !tc.writable {
		return werr.New(werr.KindUsageViolation, opContainerSave)
	}
	return tc.provider.updateKeySlot(tc.slot, content, payload)
}

// Close releases the container. For a writable container this clears
// the at-most-one-owner flag so a subsequent OpenAsOwner can succeed.
func (tc *TrustedContainer) Close() error {
	tc.closeOnce.Do(func() {
		if tc.writable {
			tc.slot.releaseOwner()
		}
	})
	return nil
}
