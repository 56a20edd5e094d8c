package acl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAndAllowed(t *testing.T) {
	data := `[
		{"userID": 42, "restrictions": [{"slotNumber": 7, "operation": "read"}]},
		{"userID": 1, "restrictions": [{"slotNumber": 3, "operation": "readWrite"}]}
	]`
	cfg, err := Load(strings.NewReader(data))
	require.NoError(t, err)
	assert.False(t, cfg.Empty())

	assert.True(t, cfg.Allowed(42, 7).Allows(OperationRead))
	assert.False(t, cfg.Allowed(42, 7).Allows(OperationWrite))
	assert.True(t, cfg.Allowed(1, 3).Allows(OperationReadWrite))
	assert.Equal(t, OperationNone, cfg.Allowed(99, 7))
}

func TestEmptyConfigDisablesEnforcement(t *testing.T) {
	cfg, err := Load(strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.True(t, cfg.Empty())
}

func TestLoadFileMissingIsEmpty(t *testing.T) {
	cfg, err := LoadFile("/nonexistent/path/to/acl.json")
	require.NoError(t, err)
	assert.True(t, cfg.Empty())
}

func TestLoadRejectsUnknownOperation(t *testing.T) {
	_, err := Load(strings.NewReader(`[{"userID":1,"restrictions":[{"slotNumber":1,"operation":"bogus"}]}]`))
	assert.Error(t, err)
}
