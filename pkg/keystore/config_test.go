package keystore

import (
	"strings"
	"testing"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDatabaseRejectsContentWithoutCOUID(t *testing.T) {
	const desc = `[{"number": 1, "uuid": "a9f8a0e0-1b1a-4e1a-9f1a-0a0a0a0a0a01", "provider.uuid": "a9f8a0e0-1b1a-4e1a-9f1a-0a0a0a0a0a02", "type": "opaqueData", "content": "deadbeef"}]`

	_, err := LoadDatabase(strings.NewReader(desc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidArgument")
}

func TestLoadDatabaseAcceptsContentWithCOUID(t *testing.T) {
	const desc = `[{"number": 1, "uuid": "a9f8a0e0-1b1a-4e1a-9f1a-0a0a0a0a0a01", "provider.uuid": "a9f8a0e0-1b1a-4e1a-9f1a-0a0a0a0a0a02", "type": "opaqueData", "content": "deadbeef", "dependency": {"uuid": "a9f8a0e0-1b1a-4e1a-9f1a-0a0a0a0a0a03"}}]`

	slots, err := LoadDatabase(strings.NewReader(desc))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].hasContent)
	assert.NotEqual(t, uuid.Nil, slots[0].content.COUID.UUID)
}
