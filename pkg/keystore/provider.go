package keystore

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	uuid "github.com/satori/go.uuid"

	"cryptdaemon.dev/cryptd/pkg/acl"
	"cryptdaemon.dev/cryptd/pkg/security"
	"cryptdaemon.dev/cryptd/pkg/werr"
)

const (
	opOpenAsUser        = "keystore.OpenAsUser"
	opOpenAsOwner       = "keystore.OpenAsOwner"
	opSaveCopy          = "keystore.SaveCopy"
	opClear             = "keystore.Clear"
	opBeginTransaction  = "keystore.BeginTransaction"
	opCommitTransaction = "keystore.CommitTransaction"
	opRollback          = "keystore.RollbackTransaction"
)

// ClearCallback lets a crypto provider veto or react to a slot clear.
// Registered per provider UUID; see spec.md §4.7 "clear".
type ClearCallback func(s *Slot) error

// findCacheKey keys the cached result of a find-object lookup with
// previous == InvalidSlot; purged whenever any write touches the
// COUID index so a cached answer is never stale.
type findCacheKey struct {
	key      couidKey
	provider uuid.UUID
}

// Provider is the composite key-storage provider: the slot table, its
// four indices, access control, and the security-event reporter,
// guarded by a single reader-writer lock per spec.md §5 (mutating
// calls serialize, reads proceed under the reader lock).
type Provider struct {
	mu  sync.RWMutex
	idx *indices

	nextTxID uint64
	txns     map[uint64]*transaction
	txBySlot map[SlotNumber]uint64

	lastStamp map[uuid.UUID]uint64
	clock     Clock

	acl      *acl.Config
	reporter security.Reporter

	onClear map[uuid.UUID]ClearCallback

	findCache *lru.Cache

	// DuplicateUUIDPolicy documents that FindSlotByUUID resolves
	// duplicate UUID-index entries to the lowest slot number; the field
	// exists so a deployment can observe the ambiguity is real (spec.md
	// §9 open question) rather than changing lookup behavior.
	DuplicateUUIDPolicy DuplicateUUIDPolicy
}

// DuplicateUUIDPolicy names how FindSlotByUUID resolves a UUID shared
// by more than one slot. FirstMatch is the only behavior implemented;
// the type exists to make the ambiguity a documented, inspectable
// deployment property instead of a silent assumption.
type DuplicateUUIDPolicy int

const (
	FirstMatch DuplicateUUIDPolicy = iota
)

// NewProvider constructs an empty provider. Slots are added with
// AddSlot, normally once at daemon start from a key-database
// description (pkg/keystore/config.go).
func NewProvider(aclConfig *acl.Config, reporter security.Reporter, clock Clock) *Provider {
	if reporter == nil {
		reporter = security.NoopReporter{}
	}
	if clock == nil {
		clock = SystemClock
	}
	cache, _ := lru.New(256)
	return &Provider{
		idx:       newIndices(),
		txns:      make(map[uint64]*transaction),
		txBySlot:  make(map[SlotNumber]uint64),
		lastStamp: make(map[uuid.UUID]uint64),
		clock:     clock,
		acl:       aclConfig,
		reporter:  reporter,
		onClear:   make(map[uuid.UUID]ClearCallback),
		findCache: cache,
	}
}

// AddSlot registers a slot at provider construction time. Not
// goroutine-safe against concurrent provider use; callers must finish
// loading the key-database description before the server starts
// accepting connections.
func (p *Provider) AddSlot(s *Slot) {
	p.idx.addSlot(s)
}

// RegisterClearCallback installs the on_clear veto/notification hook
// for the crypto provider identified by providerUUID.
func (p *Provider) RegisterClearCallback(providerUUID uuid.UUID, cb ClearCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClear[providerUUID] = cb
}

func (p *Provider) slot(n SlotNumber) *Slot {
	return p.idx.bySlotNumber[n]
}

// FindSlotByUUID resolves a slot's stable UUID to its slot number.
func (p *Provider) FindSlotByUUID(id uuid.UUID) SlotNumber {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.idx.findSlotByUUID(id)
}

// ListSlotNumbers returns every provisioned slot number in ascending
// order, the enumeration a key-database export or an operator listing
// walks over.
func (p *Provider) ListSlotNumbers() []SlotNumber {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]SlotNumber, 0, len(p.idx.bySlotNumber))
	for n := range p.idx.bySlotNumber {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FindObject resolves a COUID to the slot currently holding it.
func (p *Provider) FindObject(couid uuid.UUID, typ ObjectType, providerFilter *uuid.UUID, previous SlotNumber) SlotNumber {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if previous == InvalidSlot {
		var providerKey uuid.UUID
		if providerFilter != nil {
			providerKey = *providerFilter
		}
		ck := findCacheKey{key: couidKey{uuid: couid, typ: typ}, provider: providerKey}
		if v, ok := p.findCache.Get(ck); ok {
			return v.(SlotNumber)
		}
		result := p.idx.findObject(couid, typ, providerFilter, previous)
		p.findCache.Add(ck, result)
		return result
	}
	return p.idx.findObject(couid, typ, providerFilter, previous)
}

// IsEmpty reports a slot's user-visible emptiness: content pending in
// an uncommitted transaction shadow does not count (spec.md §4.7).
func (p *Provider) IsEmpty(n SlotNumber) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.slot(n)
	if s == nil {
		return false, werr.New(werr.KindUnknownIdentifier, "keystore.IsEmpty")
	}
	_, _, has := s.userVisibleContent()
	return !has, nil
}

func (p *Provider) checkAccess(op string, userID uint32, n SlotNumber, required acl.Operation) (*Slot, error) {
	s := p.slot(n)
	if s == nil {
		return nil, werr.New(werr.KindUnknownIdentifier, op)
	}
	if p.acl.Empty() {
		return s, nil
	}
	if !p.acl.Allowed(userID, uint64(n)).Allows(required) {
		log.Warningf("user %d denied %s on slot %s", userID, op, shortID(s.UUID))
		p.reporter.ReportKeyAccessDenied(security.ContextData{UserID: userID, SlotUUID: s.UUID.String()})
		return nil, werr.New(werr.KindAccessViolation, op)
	}
	return s, nil
}

// OpenAsUser returns a read-only container over slot n's current
// user-visible content, enforcing read access for userID.
func (p *Provider) OpenAsUser(n SlotNumber, userID uint32) (*TrustedContainer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, err := p.checkAccess(opOpenAsUser, userID, n, acl.OperationRead)
	if err != nil {
		return nil, err
	}
	content, payload, _ := s.userVisibleContent()
	return &TrustedContainer{provider: p, slot: s, writable: false, content: content, payload: payload}, nil
}

// OpenAsOwner returns an exclusive writable container over slot n,
// enforcing write access for userID and the at-most-one-owner
// invariant.
func (p *Provider) OpenAsOwner(n SlotNumber, userID uint32) (*TrustedContainer, error) {
	p.mu.RLock()
	s, err := p.checkAccess(opOpenAsOwner, userID, n, acl.OperationWrite)
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if !s.tryAcquireOwner() {
		log.Debugf("slot %s busy: owner container already open", shortID(s.UUID))
		return nil, werr.New(werr.KindBusyResource, opOpenAsOwner)
	}
	return &TrustedContainer{provider: p, slot: s, writable: true}, nil
}

// updateKeySlot is the combined prepare/commit save_copy uses
// internally: it rejects session objects and duplicate COUIDs, then
// either writes through to the shadow of a pending transaction scoped
// over this slot or directly updates the visible content, stamping the
// COUID version in the latter case.
func (p *Provider) updateKeySlot(s *Slot, content ContentProps, payload []byte) error {
	if content.COUID.IsZero() {
		return werr.New(werr.KindIncompatibleObject, opSaveCopy)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if dup := p.findDuplicateCOUID(s, content); dup {
		return werr.New(werr.KindContentDuplication, opSaveCopy)
	}

	if txID, inTx := p.txBySlot[s.Number]; inTx {
		content.COUID.Stamp = nextStamp(p.clock, p.lastStamp[content.COUID.UUID])
		s.shadow = &shadow{txID: txID, content: content, payload: payload}
		return nil
	}

	oldKey := couidKey{uuid: s.content.COUID.UUID, typ: s.content.ObjectType}
	hadContent := s.hasContent

	content.COUID.Stamp = nextStamp(p.clock, p.lastStamp[content.COUID.UUID])
	p.lastStamp[content.COUID.UUID] = content.COUID.Stamp

	s.content = content
	s.payload = payload
	s.hasContent = true
	p.idx.reindexCOUID(s, oldKey, hadContent)
	p.findCache.Purge()
	return nil
}

// findDuplicateCOUID reports whether another slot under the same
// crypto provider already holds content's COUID (spec.md §4.7
// ContentDuplication).
func (p *Provider) findDuplicateCOUID(s *Slot, content ContentProps) bool {
	key := couidKey{uuid: content.COUID.UUID, typ: content.ObjectType}
	for _, num := range p.idx.byCOUID[key] {
		if num == s.Number {
			continue
		}
		if other := p.idx.bySlotNumber[num]; other != nil && other.ProviderUUID == s.ProviderUUID {
			return true
		}
	}
	return false
}

// Clear secure-erases slot n's payload, funneling through the owning
// crypto provider's on_clear callback if one is registered.
func (p *Provider) Clear(n SlotNumber, userID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.checkAccess(opClear, userID, n, acl.OperationWrite)
	if err != nil {
		return err
	}

	if cb, ok := p.onClear[s.ProviderUUID]; ok {
		if err := cb(s); err != nil {
			return werr.Wrap(werr.KindUsageViolation, opClear, err)
		}
	}

	oldKey := couidKey{uuid: s.content.COUID.UUID, typ: s.content.ObjectType}
	hadContent := s.hasContent
	for i := range s.payload {
		s.payload[i] = 0
	}
	s.payload = nil
	s.content = ContentProps{}
	s.hasContent = false
	p.idx.reindexCOUID(s, oldKey, hadContent)
	p.findCache.Purge()
	return nil
}
