// Package acl holds the access-control configuration consulted by the
// key-storage provider on every user-facing slot operation: a map from
// user id to the set of slot numbers that user may read or write.
package acl

import (
	"encoding/json"
	"io"
	"os"

	"cryptdaemon.dev/cryptd/pkg/werr"
)

// Operation is a bit set over {read, write}.
type Operation uint8

const (
	OperationNone      Operation = 0
	OperationRead      Operation = 1 << 0
	OperationWrite     Operation = 1 << 1
	OperationReadWrite Operation = OperationRead | OperationWrite
)

// Allows reports whether op grants every bit set in required.
func (op Operation) Allows(required Operation) bool {
	return op&required == required
}

func (op Operation) String() string {
	switch op {
	case OperationNone:
		return "none"
	case OperationRead:
		return "read"
	case OperationWrite:
		return "write"
	case OperationReadWrite:
		return "readWrite"
	default:
		return "unknown"
	}
}

func parseOperation(s string) (Operation, error) {
	switch s {
	case "none", "":
		return OperationNone, nil
	case "read":
		return OperationRead, nil
	case "write":
		return OperationWrite, nil
	case "readWrite":
		return OperationReadWrite, nil
	default:
		return OperationNone, werr.New(werr.KindInvalidArgument, "acl.parseOperation")
	}
}

// restriction is one (slotNumber, operation) pair in a user's record, as
// it appears in the external JSON description (spec.md §6).
type restriction struct {
	SlotNumber uint64 `json:"slotNumber"`
	Operation  string `json:"operation"`
}

type userRecord struct {
	UserID       uint32        `json:"userID"`
	Restrictions []restriction `json:"restrictions"`
}

// Config is the immutable-after-load access-control matrix: user id ->
// slot number -> permitted operation. A user or slot absent from the
// map has Operation none.
type Config struct {
	table map[uint32]map[uint64]Operation
}

// Empty reports whether the configuration has no entries at all, in
// which case the key-storage provider disables enforcement entirely
// (spec.md §4.7, a deployment option).
func (c *Config) Empty() bool {
	return c == nil || len(c.table) == 0
}

// Allowed returns the operation bits the given user holds on the given
// slot. Absent entries default to OperationNone.
func (c *Config) Allowed(userID uint32, slotNumber uint64) Operation {
	if c == nil {
		return OperationNone
	}
	slots, ok := c.table[userID]
	if !ok {
		return OperationNone
	}
	return slots[slotNumber]
}

const opLoad = "acl.Load"

// Load parses an access-control description from r: a JSON array of
// { userID, restrictions: [{ slotNumber, operation }] } records.
func Load(r io.Reader) (*Config, error) {
	var records []userRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, werr.Wrap(werr.KindInvalidArgument, opLoad, err)
	}

	table := make(map[uint32]map[uint64]Operation, len(records))
	for _, rec := range records {
		slots := make(map[uint64]Operation, len(rec.Restrictions))
		for _, restr := range rec.Restrictions {
			op, err := parseOperation(restr.Operation)
			if err != nil {
				return nil, err
			}
			slots[restr.SlotNumber] = op
		}
		table[rec.UserID] = slots
	}
	return &Config{table: table}, nil
}

// LoadFile opens path and parses it as an access-control description.
// A missing file is treated as an empty (enforcement-disabled)
// configuration, matching the teacher's lenient config-loading stance
// for optional deployment files.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, werr.Wrap(werr.KindResourceFault, opLoad, err)
	}
	defer f.Close()
	return Load(f)
}
