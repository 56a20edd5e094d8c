package keystore

import (
	"cryptdaemon.dev/cryptd/pkg/acl"
	"cryptdaemon.dev/cryptd/pkg/werr"
)

// BeginTransaction reserves scope for atomic update under endpointID,
// failing BusyResource if any scope slot already belongs to another
// pending transaction, AccessViolation if access control is configured
// and callerUID lacks write access to any scope slot, UnknownIdentifier
// for a slot that does not exist, and InvalidArgument on a duplicate
// slot within scope.
func (p *Provider) BeginTransaction(scope []SlotNumber, callerUID uint32, endpointID string) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[SlotNumber]bool, len(scope))
	for _, n := range scope {
		if seen[n] {
			return 0, werr.New(werr.KindInvalidArgument, opBeginTransaction)
		}
		seen[n] = true

		s := p.slot(n)
		if s == nil {
			return 0, werr.New(werr.KindUnknownIdentifier, opBeginTransaction)
		}
		if !p.acl.Empty() && !p.acl.Allowed(callerUID, uint64(n)).Allows(acl.OperationWrite) {
			return 0, werr.New(werr.KindAccessViolation, opBeginTransaction)
		}
		if _, busy := p.txBySlot[n]; busy {
			return 0, werr.New(werr.KindBusyResource, opBeginTransaction)
		}
	}

	p.nextTxID++
	id := p.nextTxID
	tx := &transaction{id: id, scope: append([]SlotNumber(nil), scope...), ownerUID: callerUID, endpointID: endpointID}
	p.txns[id] = tx
	for _, n := range scope {
		p.txBySlot[n] = id
	}
	return id, nil
}

// CommitTransaction swaps every scope slot's shadow into its visible
// content, atomically from a reader's point of view: all scope slots
// change together under the provider's single write lock.
func (p *Provider) CommitTransaction(txID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, ok := p.txns[txID]
	if !ok {
		return werr.New(werr.KindUnknownIdentifier, opCommitTransaction)
	}

	for _, n := range tx.scope {
		s := p.slot(n)
		if s == nil || s.shadow == nil || s.shadow.txID != txID {
			continue
		}
		oldKey := couidKey{uuid: s.content.COUID.UUID, typ: s.content.ObjectType}
		hadContent := s.hasContent

		s.content = s.shadow.content
		s.payload = s.shadow.payload
		s.hasContent = true
		p.lastStamp[s.content.COUID.UUID] = s.content.COUID.Stamp
		s.shadow = nil

		p.idx.reindexCOUID(s, oldKey, hadContent)
	}
	p.endTransaction(tx)
	p.findCache.Purge()
	return nil
}

// RollbackTransaction discards every scope slot's shadow, leaving the
// pre-transaction content untouched.
func (p *Provider) RollbackTransaction(txID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, ok := p.txns[txID]
	if !ok {
		return werr.New(werr.KindUnknownIdentifier, opRollback)
	}
	p.discardShadows(tx)
	p.endTransaction(tx)
	return nil
}

func (p *Provider) discardShadows(tx *transaction) {
	for _, n := range tx.scope {
		if s := p.slot(n); s != nil && s.shadow != nil && s.shadow.txID == tx.id {
			s.shadow = nil
		}
	}
}

func (p *Provider) endTransaction(tx *transaction) {
	delete(p.txns, tx.id)
	for _, n := range tx.scope {
		delete(p.txBySlot, n)
	}
}

// RollbackEndpointTransactions rolls back every transaction still
// pending for endpointID, the recovery spec.md §5 "Disconnect
// semantics" requires.
func (p *Provider) RollbackEndpointTransactions(endpointID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var pending []*transaction
	for _, tx := range p.txns {
		if tx.endpointID == endpointID {
			pending = append(pending, tx)
		}
	}
	for _, tx := range pending {
		p.discardShadows(tx)
		p.endTransaction(tx)
	}
}
