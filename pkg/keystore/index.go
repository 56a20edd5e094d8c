package keystore

import (
	"sort"

	uuid "github.com/satori/go.uuid"
)

// indices holds the four lookup structures fronting the slot table
// (spec.md §3, §4.7). The UUID and COUID indices permit duplicate keys
// and are kept sorted by (key, slot_number) so a lookup is a range
// query; all four are rebuilt from the slot table at provider
// construction time.
type indices struct {
	bySlotNumber   map[SlotNumber]*Slot
	byUUID         map[uuid.UUID][]SlotNumber
	byCOUID        map[couidKey][]SlotNumber
	byProviderUUID map[uuid.UUID][]SlotNumber
}

func newIndices() *indices {
	return &indices{
		bySlotNumber:   make(map[SlotNumber]*Slot),
		byUUID:         make(map[uuid.UUID][]SlotNumber),
		byCOUID:        make(map[couidKey][]SlotNumber),
		byProviderUUID: make(map[uuid.UUID][]SlotNumber),
	}
}

func insertSorted(nums []SlotNumber, n SlotNumber) []SlotNumber {
	i := sort.Search(len(nums), func(i int) bool { return nums[i] >= n })
	nums = append(nums, 0)
	copy(nums[i+1:], nums[i:])
	nums[i] = n
	return nums
}

// removeFirst deletes the first occurrence of n from nums, preserving
// order (spec.md §4.7: "removal ... removes exactly the first entry
// whose slot_number matches").
func removeFirst(nums []SlotNumber, n SlotNumber) []SlotNumber {
	for i, v := range nums {
		if v == n {
			return append(nums[:i], nums[i+1:]...)
		}
	}
	return nums
}

func (idx *indices) addSlot(s *Slot) {
	idx.bySlotNumber[s.Number] = s
	idx.byUUID[s.UUID] = insertSorted(idx.byUUID[s.UUID], s.Number)
	idx.byProviderUUID[s.ProviderUUID] = insertSorted(idx.byProviderUUID[s.ProviderUUID], s.Number)
	if s.hasContent {
		key := couidKey{uuid: s.content.COUID.UUID, typ: s.content.ObjectType}
		idx.byCOUID[key] = insertSorted(idx.byCOUID[key], s.Number)
	}
}

// reindexCOUID removes any COUID index entry under oldKey for s and, if
// s currently has content, adds an entry under its current key. Called
// after a direct (non-shadowed) content write or a transaction commit.
func (idx *indices) reindexCOUID(s *Slot, oldKey couidKey, hadContent bool) {
	if hadContent {
		idx.byCOUID[oldKey] = removeFirst(idx.byCOUID[oldKey], s.Number)
		if len(idx.byCOUID[oldKey]) == 0 {
			delete(idx.byCOUID, oldKey)
		}
	}
	if s.hasContent {
		key := couidKey{uuid: s.content.COUID.UUID, typ: s.content.ObjectType}
		idx.byCOUID[key] = insertSorted(idx.byCOUID[key], s.Number)
	}
}

// findSlotByUUID returns the lowest slot number registered for id, or
// InvalidSlot (spec.md §4.7: "binary-search the UUID index").
func (idx *indices) findSlotByUUID(id uuid.UUID) SlotNumber {
	nums := idx.byUUID[id]
	if len(nums) == 0 {
		return InvalidSlot
	}
	return nums[0]
}

// findObject iterates the COUID index entries for (couid, typ) in
// ascending slot-number order, skipping any at or before previous, and
// returns the first whose slot's provider UUID matches providerFilter
// (when non-nil).
func (idx *indices) findObject(couid uuid.UUID, typ ObjectType, providerFilter *uuid.UUID, previous SlotNumber) SlotNumber {
	key := couidKey{uuid: couid, typ: typ}
	for _, num := range idx.byCOUID[key] {
		if previous != InvalidSlot && num <= previous {
			continue
		}
		if providerFilter != nil {
			slot := idx.bySlotNumber[num]
			if slot == nil || slot.ProviderUUID != *providerFilter {
				continue
			}
		}
		return num
	}
	return InvalidSlot
}
