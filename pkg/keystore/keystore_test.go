package keystore

import (
	"encoding/json"
	"strings"
	"testing"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptdaemon.dev/cryptd/pkg/acl"
	"cryptdaemon.dev/cryptd/pkg/security"
)

// fakeClock lets tests force "the monotonic clock reports equal
// readings" (spec.md §8 property 7).
type fakeClock struct{ now uint64 }

func (c *fakeClock) Now() uint64 { return c.now }

func emptyACL(t *testing.T) *acl.Config {
	t.Helper()
	cfg, err := acl.Load(strings.NewReader(`[]`))
	require.NoError(t, err)
	return cfg
}

func newTestProvider(t *testing.T, aclCfg *acl.Config, clock Clock) *Provider {
	t.Helper()
	if aclCfg == nil {
		aclCfg = emptyACL(t)
	}
	return NewProvider(aclCfg, nil, clock)
}

func addSlot(p *Provider, number SlotNumber) *Slot {
	s := newSlot(number, uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), PrototypeProps{})
	p.AddSlot(s)
	return s
}

func TestAtMostOneOwner(t *testing.T) {
	p := newTestProvider(t, nil, nil)
	addSlot(p, 7)

	tc1, err := p.OpenAsOwner(7, 1)
	require.NoError(t, err)

	_, err = p.OpenAsOwner(7, 1)
	require.Error(t, err)
	assert.Equal(t, `keystore.OpenAsOwner: BusyResource`, err.Error())

	require.NoError(t, tc1.Close())

	tc2, err := p.OpenAsOwner(7, 1)
	require.NoError(t, err)
	require.NoError(t, tc2.Close())
}

func TestAccessControlReadOnlyDeniesOwner(t *testing.T) {
	cfg, err := acl.Load(strings.NewReader(`[{"userID":42,"restrictions":[{"slotNumber":7,"operation":"read"}]}]`))
	require.NoError(t, err)

	var denied []security.ContextData
	reporter := reporterFunc(func(ctx security.ContextData) { denied = append(denied, ctx) })

	p := NewProvider(cfg, reporter, nil)
	s := addSlot(p, 7)

	_, err = p.OpenAsUser(7, 42)
	require.NoError(t, err)

	_, err = p.OpenAsOwner(7, 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessViolation")

	require.Len(t, denied, 1)
	assert.Equal(t, uint32(42), denied[0].UserID)
	assert.Equal(t, s.UUID.String(), denied[0].SlotUUID)
}

func TestSaveCopyAndFindObject(t *testing.T) {
	p := newTestProvider(t, nil, nil)
	provider := uuid.Must(uuid.NewV4())
	s := newSlot(7, uuid.Must(uuid.NewV4()), provider, PrototypeProps{})
	p.AddSlot(s)

	tc, err := p.OpenAsOwner(7, 1)
	require.NoError(t, err)
	defer tc.Close()

	couid := uuid.Must(uuid.NewV4())
	content := ContentProps{COUID: COUID{UUID: couid}, ObjectType: ObjectTypeSymmetricKey, AlgorithmID: 0x20, BitLength: 128}
	payload := []byte{0x00, 0x11, 0x22, 0x33}
	require.NoError(t, tc.Save(content, payload))

	found := p.FindObject(couid, ObjectTypeSymmetricKey, nil, InvalidSlot)
	assert.Equal(t, SlotNumber(7), found)

	reader, err := p.OpenAsUser(7, 1)
	require.NoError(t, err)
	assert.Equal(t, payload, reader.Payload())
}

func TestDuplicateCOUIDRejected(t *testing.T) {
	p := newTestProvider(t, nil, nil)
	provider := uuid.Must(uuid.NewV4())
	s1 := newSlot(7, uuid.Must(uuid.NewV4()), provider, PrototypeProps{})
	s2 := newSlot(8, uuid.Must(uuid.NewV4()), provider, PrototypeProps{})
	p.AddSlot(s1)
	p.AddSlot(s2)

	couid := uuid.Must(uuid.NewV4())
	content := ContentProps{COUID: COUID{UUID: couid}, ObjectType: ObjectTypeSymmetricKey}

	tc1, err := p.OpenAsOwner(7, 1)
	require.NoError(t, err)
	require.NoError(t, tc1.Save(content, []byte{1}))
	tc1.Close()

	tc2, err := p.OpenAsOwner(8, 1)
	require.NoError(t, err)
	defer tc2.Close()

	err = tc2.Save(content, []byte{2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ContentDuplication")
}

func TestVersionStampingStrictlyIncreasesUnderClockStall(t *testing.T) {
	clock := &fakeClock{now: 100}
	p := newTestProvider(t, nil, clock)
	provider := uuid.Must(uuid.NewV4())
	s := newSlot(7, uuid.Must(uuid.NewV4()), provider, PrototypeProps{})
	p.AddSlot(s)

	couid := uuid.Must(uuid.NewV4())

	tc, err := p.OpenAsOwner(7, 1)
	require.NoError(t, err)
	require.NoError(t, tc.Save(ContentProps{COUID: COUID{UUID: couid}, ObjectType: ObjectTypeSymmetricKey}, []byte{1}))
	first := tc.Content().COUID.Stamp
	tc.Close()

	// clock stalls at the same reading for the next save
	tc2, err := p.OpenAsOwner(7, 1)
	require.NoError(t, err)
	defer tc2.Close()
	require.NoError(t, tc2.Save(ContentProps{COUID: COUID{UUID: couid}, ObjectType: ObjectTypeSymmetricKey}, []byte{2}))
	second := tc2.Content().COUID.Stamp

	assert.Greater(t, second, first)
}

func TestTransactionRollbackRestoresPriorContent(t *testing.T) {
	p := newTestProvider(t, nil, nil)
	s3 := newSlot(3, uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), PrototypeProps{})
	s4 := newSlot(4, uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), PrototypeProps{})
	p.AddSlot(s3)
	p.AddSlot(s4)

	priorCOUID := uuid.Must(uuid.NewV4())
	tcSetup, err := p.OpenAsOwner(3, 1)
	require.NoError(t, err)
	require.NoError(t, tcSetup.Save(ContentProps{COUID: COUID{UUID: priorCOUID}, ObjectType: ObjectTypeSymmetricKey}, []byte{9}))
	tcSetup.Close()

	txID, err := p.BeginTransaction([]SlotNumber{3, 4}, 1, "endpoint-1")
	require.NoError(t, err)

	newCOUID := uuid.Must(uuid.NewV4())
	tc3, err := p.OpenAsOwner(3, 1)
	require.NoError(t, err)
	require.NoError(t, tc3.Save(ContentProps{COUID: COUID{UUID: newCOUID}, ObjectType: ObjectTypeSymmetricKey}, []byte{1}))
	tc3.Close()

	tc4, err := p.OpenAsOwner(4, 1)
	require.NoError(t, err)
	require.NoError(t, tc4.Save(ContentProps{COUID: COUID{UUID: newCOUID}, ObjectType: ObjectTypeSymmetricKey}, []byte{2}))
	tc4.Close()

	reader, err := p.OpenAsUser(3, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, reader.Payload())

	require.NoError(t, p.RollbackTransaction(txID))

	reader3, err := p.OpenAsUser(3, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, reader3.Payload())

	isEmpty4, err := p.IsEmpty(4)
	require.NoError(t, err)
	assert.True(t, isEmpty4)

	assert.Equal(t, InvalidSlot, p.FindObject(newCOUID, ObjectTypeSymmetricKey, nil, InvalidSlot))
}

func TestDisconnectRollsBackPendingTransaction(t *testing.T) {
	p := newTestProvider(t, nil, nil)
	s3 := newSlot(3, uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), PrototypeProps{})
	p.AddSlot(s3)

	txID, err := p.BeginTransaction([]SlotNumber{3}, 1, "endpoint-1")
	require.NoError(t, err)

	p.RollbackEndpointTransactions("endpoint-1")

	err = p.CommitTransaction(txID)
	require.Error(t, err)
}

func TestListSlotNumbersAndExport(t *testing.T) {
	p := newTestProvider(t, nil, nil)
	addSlot(p, 5)
	addSlot(p, 2)
	addSlot(p, 9)

	assert.Equal(t, []SlotNumber{2, 5, 9}, p.ListSlotNumbers())

	buf, err := p.Export()
	require.NoError(t, err)

	var descs []slotDescription
	require.NoError(t, json.Unmarshal(buf, &descs))
	assert.Len(t, descs, 3)
}

type reporterFunc func(security.ContextData)

func (f reporterFunc) ReportKeyAccessDenied(ctx security.ContextData) { f(ctx) }
