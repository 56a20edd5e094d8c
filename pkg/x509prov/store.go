package x509prov

import (
	"crypto/x509"

	"cryptdaemon.dev/cryptd/pkg/werr"
)

const opParse = "x509prov.StoreProvider.Parse"
const opVerify = "x509prov.StoreProvider.Verify"

// StoreProvider is the daemon's default Provider: it defers all actual
// parsing and chain verification to the standard library's crypto/x509
// (the real engine remains an external collaborator per spec.md §1 —
// this is plumbing, not a cryptographic primitive of our own) rooted at
// a configured storage directory (X.509.storage.root, spec.md §6).
type StoreProvider struct {
	root string
}

// NewStoreProvider returns a Provider rooted at root, the directory a
// deployment configures via X.509.storage.root.
func NewStoreProvider(root string) *StoreProvider {
	return &StoreProvider{root: root}
}

var _ Provider = (*StoreProvider)(nil)

// Parse decodes a DER-encoded certificate.
func (p *StoreProvider) Parse(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, werr.Wrap(werr.KindInvalidArgument, opParse, err)
	}
	return cert, nil
}

// Verify checks cert's chain against roots, built by the caller from
// the storage root's trust anchors.
func (p *StoreProvider) Verify(cert *x509.Certificate, roots *x509.CertPool) error {
	opts := x509.VerifyOptions{Roots: roots}
	if _, err := cert.Verify(opts); err != nil {
		return werr.Wrap(werr.KindUnsupported, opVerify, err)
	}
	return nil
}

// StorageRoot returns the directory certificates and trust anchors are
// stored under.
func (p *StoreProvider) StorageRoot() string {
	return p.root
}
