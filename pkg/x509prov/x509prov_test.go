package x509prov

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireProvisioningAccess(t *testing.T) {
	cfg := AccessConfig{CAConnectorUID: 100, TrustMasterUID: 200}

	assert.NoError(t, cfg.RequireProvisioningAccess(100))
	assert.NoError(t, cfg.RequireProvisioningAccess(200))

	err := cfg.RequireProvisioningAccess(42)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "AccessViolation")
}
