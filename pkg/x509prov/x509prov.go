// Package x509prov defines the pluggable X.509 certificate provider
// surface: parsing and verification are an external collaborator per
// spec.md §1, so this package names the contract and the
// caller_uid-gated provisioning check spec.md §6 describes
// (X.509.access.caConnectorId / trustmasterId).
package x509prov

import (
	"crypto/x509"

	"cryptdaemon.dev/cryptd/pkg/werr"
)

// Provider parses and verifies certificates. The implementation is an
// external collaborator; this interface only fixes the shape skeletons
// dispatch to.
type Provider interface {
	Parse(der []byte) (*x509.Certificate, error)
	Verify(cert *x509.Certificate, roots *x509.CertPool) error
	StorageRoot() string
}

// AccessConfig carries the two privileged user ids spec.md §6 names:
// the CA connector and the trust-master, the only callers permitted to
// provision certificates.
type AccessConfig struct {
	CAConnectorUID uint32
	TrustMasterUID uint32
}

const opRequireProvisioning = "x509prov.RequireProvisioningAccess"

// RequireProvisioningAccess implements the restricted-method check
// spec.md §4.3 describes for X.509 provisioning: callerUID must match
// one of the two configured privileged ids, or the call is rejected
// before the provider is ever invoked.
func (c AccessConfig) RequireProvisioningAccess(callerUID uint32) error {
	if callerUID == c.CAConnectorUID || callerUID == c.TrustMasterUID {
		return nil
	}
	return werr.New(werr.KindAccessViolation, opRequireProvisioning)
}
