// Package keystore implements the composite key-storage provider
// (spec.md §4.7): an ordered table of Slots fronted by four indices,
// transactional multi-slot updates, and access-control enforcement.
package keystore

import (
	uuid "github.com/satori/go.uuid"
)

// SlotNumber is the stable integer key identifying one slot.
type SlotNumber uint64

// InvalidSlot is returned by lookups that find nothing, mirroring the
// source's kInvalidSlot sentinel. Real slot numbers are assigned by
// the key-database description and are never this value.
const InvalidSlot SlotNumber = ^SlotNumber(0)

// ObjectType names the kind of crypto object a slot's content holds.
type ObjectType uint16

const (
	ObjectTypeNone ObjectType = iota
	ObjectTypeSymmetricKey
	ObjectTypeAsymmetricKeyPair
	ObjectTypePublicKey
	ObjectTypePrivateKey
	ObjectTypeCertificate
	ObjectTypeOpaqueData
)

// UsageFlags is a bit set over the cryptographic operations content may
// be used for (sign, verify, encrypt, decrypt, wrap, unwrap, derive).
type UsageFlags uint32

// COUID is the persistent identity of a crypto object: a 128-bit UUID
// plus a monotonically increasing version stamp (spec.md §3, §4.7).
type COUID struct {
	UUID  uuid.UUID
	Stamp uint64
}

// IsZero reports whether this COUID names no persistent object — the
// marker for a session (temporary) object that cannot be saved to a
// slot (spec.md invariant 4).
func (c COUID) IsZero() bool {
	return c.UUID == uuid.Nil
}

// VersionControlPolicy governs whether a slot retains the COUID of the
// content it replaces.
type VersionControlPolicy uint8

const (
	VersionControlNone VersionControlPolicy = iota
	VersionControlRetainPrevious
)

// PrototypeProps is the immutable shape a slot was provisioned with: it
// never changes after the key-database description is loaded.
type PrototypeProps struct {
	AllowedType       ObjectType
	AllowedAlgorithms []uint32
	Capacity          uint32
	Exportable        bool
	VersionControl    VersionControlPolicy
	PrevContentCOUID  uuid.UUID
	PrevContentType   ObjectType
	OwnerUserID       uint32
	AllowedUserIDs    []uint32
}

// ContentProps is the mutable description of a slot's current payload.
type ContentProps struct {
	COUID        COUID
	ObjectType   ObjectType
	AlgorithmID  uint32
	BitLength    uint32
	AllowedUsage UsageFlags
}

// couidKey identifies a (COUID, object type) index bucket. Duplicates
// within a bucket are permitted and ordered by slot number (spec.md
// §4.7 "Indices policy").
type couidKey struct {
	uuid uuid.UUID
	typ  ObjectType
}
