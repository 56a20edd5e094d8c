package keystore

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"os"

	uuid "github.com/satori/go.uuid"

	"cryptdaemon.dev/cryptd/pkg/werr"
)

const opLoadDatabase = "keystore.LoadDatabase"

// slotDescription is one entry of the external key-database
// description (spec.md §6): the recognized keys number, uuid,
// provider.uuid, path, per-slot meta, and slot content when non-empty.
type slotDescription struct {
	Number       uint64 `json:"number"`
	UUID         string `json:"uuid"`
	ProviderUUID string `json:"provider.uuid"`
	Path         string `json:"path"`

	Type           string   `json:"type"`
	Dependency     dependency `json:"dependency"`
	Restriction    restriction `json:"contentRestriction"`
	Capacity       uint32   `json:"capacity"`
	VersionControl versionControlDesc `json:"versionControl"`
	OwnerUUID      string   `json:"owner.uuid"`
	UserUUIDs      []string `json:"user.uuid"`

	ContentHex string `json:"content"`
}

type dependency struct {
	UUID string `json:"uuid"`
	Type string `json:"type"`
}

type restriction struct {
	IsExportable bool   `json:"isExportable"`
	AlgID        uint32 `json:"algId"`
	Type         string `json:"type"`
}

type versionControlDesc struct {
	Type         string       `json:"type"`
	PrevContent  prevContent  `json:"prevContent"`
}

type prevContent struct {
	COUID string `json:"couid"`
	Type  string `json:"type"`
}

var objectTypeNames = map[string]ObjectType{
	"":               ObjectTypeNone,
	"symmetricKey":   ObjectTypeSymmetricKey,
	"asymmetricPair": ObjectTypeAsymmetricKeyPair,
	"publicKey":      ObjectTypePublicKey,
	"privateKey":     ObjectTypePrivateKey,
	"certificate":    ObjectTypeCertificate,
	"opaqueData":     ObjectTypeOpaqueData,
}

func parseObjectType(s string) ObjectType {
	return objectTypeNames[s]
}

func parseUUID(s string) uuid.UUID {
	if s == "" {
		return uuid.Nil
	}
	id, err := uuid.FromString(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// LoadDatabase parses a key-database description and returns the
// constructed slots, owner-flagged and indexed by the caller via
// Provider.AddSlot. Numeric owner/user fields are carried as UUIDs in
// the description but the provider's access-control model keys slots
// by numeric user id, so OwnerUUID/UserUUIDs are parsed but not
// recorded on the prototype, and are not consulted by
// BeginTransaction/checkAccess — acl.Config is
// the sole access-control authority (spec.md §4.8).
func LoadDatabase(r io.Reader) ([]*Slot, error) {
	var descs []slotDescription
	if err := json.NewDecoder(r).Decode(&descs); err != nil {
		return nil, werr.Wrap(werr.KindInvalidArgument, opLoadDatabase, err)
	}

	slots := make([]*Slot, 0, len(descs))
	for _, d := range descs {
		proto := PrototypeProps{
			AllowedType:      parseObjectType(d.Type),
			Capacity:         d.Capacity,
			Exportable:       d.Restriction.IsExportable,
			PrevContentCOUID: parseUUID(d.VersionControl.PrevContent.COUID),
			PrevContentType:  parseObjectType(d.VersionControl.PrevContent.Type),
		}
		if d.VersionControl.Type == "retainPrevious" {
			proto.VersionControl = VersionControlRetainPrevious
		}

		s := newSlot(SlotNumber(d.Number), parseUUID(d.UUID), parseUUID(d.ProviderUUID), proto)

		if d.ContentHex != "" {
			couid := parseUUID(d.Dependency.UUID)
			if couid == uuid.Nil {
				return nil, werr.New(werr.KindInvalidArgument, opLoadDatabase)
			}
			payload, err := hex.DecodeString(d.ContentHex)
			if err != nil {
				return nil, werr.Wrap(werr.KindInvalidArgument, opLoadDatabase, err)
			}
			s.payload = payload
			s.hasContent = true
			s.content = ContentProps{
				COUID:       COUID{UUID: couid},
				ObjectType:  parseObjectType(d.Type),
				AlgorithmID: d.Restriction.AlgID,
			}
		}
		slots = append(slots, s)
	}
	return slots, nil
}

// LoadDatabaseFile opens and parses a key-database description file.
func LoadDatabaseFile(path string) ([]*Slot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, werr.Wrap(werr.KindResourceFault, opLoadDatabase, err)
	}
	defer f.Close()
	return LoadDatabase(f)
}
