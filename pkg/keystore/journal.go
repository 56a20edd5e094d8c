package keystore

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"

	"cryptdaemon.dev/cryptd/pkg/atomicfile"
	"cryptdaemon.dev/cryptd/pkg/werr"
)

const opPersist = "keystore.Provider.Persist"

// Persist dumps the provider's current slot table to path as a
// key-database description (spec.md §6), the same shape LoadDatabase
// reads back, written atomically via pkg/atomicfile so a crash mid-write
// never leaves a torn file (spec.md §3 "a pointer to the underlying
// database (opaque journal over the filesystem)"). Pending transaction
// shadows are never persisted: only user-visible content is written,
// matching is_empty's user-visible-emptiness rule.
func (p *Provider) Persist(path string) error {
	buf, err := p.Export()
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(path, buf, 0600); err != nil {
		return werr.Wrap(werr.KindResourceFault, opPersist, err)
	}
	return nil
}

// Export renders the provider's current slot table as a key-database
// description (the same shape Persist writes to disk), for an operator
// dump over the RPC bridge (cryptctl keystore export) rather than a
// local file.
func (p *Provider) Export() ([]byte, error) {
	p.mu.RLock()
	descs := make([]slotDescription, 0, len(p.idx.bySlotNumber))
	for _, s := range p.idx.bySlotNumber {
		descs = append(descs, slotToDescription(s))
	}
	p.mu.RUnlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(descs); err != nil {
		return nil, werr.Wrap(werr.KindRuntimeFault, opPersist, err)
	}
	return buf.Bytes(), nil
}

// slotToDescription renders a Slot's current (user-visible) state back
// into the external key-database description shape.
func slotToDescription(s *Slot) slotDescription {
	content, payload, has := s.userVisibleContent()
	d := slotDescription{
		Number:       uint64(s.Number),
		UUID:         s.UUID.String(),
		ProviderUUID: s.ProviderUUID.String(),
		Type:         objectTypeName(s.Prototype.AllowedType),
		Capacity:     s.Prototype.Capacity,
		Restriction: restriction{
			IsExportable: s.Prototype.Exportable,
		},
	}
	if s.Prototype.VersionControl == VersionControlRetainPrevious {
		d.VersionControl.Type = "retainPrevious"
		d.VersionControl.PrevContent.COUID = s.Prototype.PrevContentCOUID.String()
		d.VersionControl.PrevContent.Type = objectTypeName(s.Prototype.PrevContentType)
	}
	if has {
		d.Dependency.UUID = content.COUID.UUID.String()
		d.Restriction.AlgID = content.AlgorithmID
		d.ContentHex = hex.EncodeToString(payload)
	}
	return d
}

func objectTypeName(t ObjectType) string {
	for name, candidate := range objectTypeNames {
		if candidate == t && name != "" {
			return name
		}
	}
	return ""
}

// LoadOrInitDatabase loads the key-database description at path and
// returns its slots for the caller to add via Provider.AddSlot,
// tolerating a missing file as "no slots
// configured yet" the same lenient stance pkg/acl.LoadFile takes for
// its own optional deployment file.
func LoadOrInitDatabase(path string) ([]*Slot, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, werr.Wrap(werr.KindResourceFault, opLoadDatabase, err)
	}
	defer f.Close()
	return LoadDatabase(f)
}
