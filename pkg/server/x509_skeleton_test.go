package server_test

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptdaemon.dev/cryptd/pkg/registry"
	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/server"
	"cryptdaemon.dev/cryptd/pkg/skeleton"
	"cryptdaemon.dev/cryptd/pkg/wire"
	"cryptdaemon.dev/cryptd/pkg/x509prov"
)

type fakeX509Provider struct{ storageRoot string }

func (p *fakeX509Provider) Parse(der []byte) (*x509.Certificate, error) {
	return x509.ParseCertificate(der)
}
func (p *fakeX509Provider) Verify(cert *x509.Certificate, roots *x509.CertPool) error { return nil }
func (p *fakeX509Provider) StorageRoot() string                                      { return p.storageRoot }

func callContext() *skeleton.CallContext {
	return &skeleton.CallContext{Objects: registry.NewObject(), Skeletons: registry.NewSkeleton()}
}

// TestX509ProvisionRequiresPrivilegedCaller exercises the one skeleton
// in the repo that cannot use skeleton.Base's single-AllowedUID gate:
// provisioning is permitted to either the CA connector or the
// trust-master, never checked against the real Provider unless the
// caller matches.
func TestX509ProvisionRequiresPrivilegedCaller(t *testing.T) {
	access := x509prov.AccessConfig{CAConnectorUID: 500, TrustMasterUID: 600}
	b := server.NewX509Skeleton(1, &fakeX509Provider{storageRoot: "/var/cryptd/x509"}, access)

	in := wire.NewReader(nil)
	out := wire.NewWriter()
	ctx := callContext()
	ctx.CallerUID = 42

	err := b.Methods[server.DetailX509Provision](ctx, in, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessViolation")
}

func TestX509StorageRoot(t *testing.T) {
	access := x509prov.AccessConfig{CAConnectorUID: 500, TrustMasterUID: 600}
	b := server.NewX509Skeleton(1, &fakeX509Provider{storageRoot: "/var/cryptd/x509"}, access)

	in := wire.NewReader(nil)
	out := wire.NewWriter()
	ctx := callContext()

	require.NoError(t, b.Methods[server.DetailX509StorageRoot](ctx, in, out))

	r := wire.NewReader(out.Bytes())
	tag := r.ReadUint8()
	assert.Equal(t, uint8(rpc.ResponseTagValue), tag)
	assert.Equal(t, "/var/cryptd/x509", r.ReadString())
}
