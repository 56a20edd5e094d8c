package keystore

// transaction is a named set of slot numbers reserved for atomic
// update (spec.md §3, §4.7). While open, writes against scope slots
// land in each slot's shadow; commit swaps shadow into the visible
// content for every scope slot at once, rollback discards it.
type transaction struct {
	id         uint64
	scope      []SlotNumber
	ownerUID   uint32
	endpointID string
}

func (t *transaction) inScope(n SlotNumber) bool {
	for _, s := range t.scope {
		if s == n {
			return true
		}
	}
	return false
}
