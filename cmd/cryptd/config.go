package main

import (
	"encoding/json"
	"os"

	"github.com/blang/semver"
	uuid "github.com/satori/go.uuid"

	"cryptdaemon.dev/cryptd/pkg/werr"
)

const opLoadConfig = "cryptd.loadConfig"

// daemonConfig is the external structured description spec.md §6 names:
// Server.*, X.509.*, plus the key-database/access-control file paths
// and the fixed set of crypto providers this deployment registers.
// Matching the teacher's own JSON-config style (encoding/json structs
// co-located with their consumer — here, the daemon entrypoint, since
// these keys don't belong to any single package), loading mechanics
// are explicitly out of scope per spec.md §1 but the shape is not.
type daemonConfig struct {
	Server struct {
		SocketPath       string `json:"socketPath"`
		MaxConnectionNum int    `json:"maxConnectionNum"`
		KeyDatabase      string `json:"keyDatabase"`
		KeyAccessControl string `json:"keyAccessControl"`
		IdsmReporting    bool   `json:"idsmReporting"`
		IdsmTopicARN     string `json:"idsmTopicArn"`
		IdsmRegion       string `json:"idsmRegion"`
		IdsmAccessKeyID  string `json:"idsmAccessKeyId"`
		IdsmSecretKey    string `json:"idsmSecretAccessKey"`
		JournalPath      string `json:"journalPath"`
		Syslog           bool   `json:"syslog"`
	} `json:"Server"`

	X509 struct {
		StorageRoot string `json:"storage.root"`
		Access      struct {
			CAConnectorID uint32 `json:"caConnectorId"`
			TrustmasterID uint32 `json:"trustmasterId"`
		} `json:"access"`
	} `json:"X.509"`

	CryptoProviders []cryptoProviderConfig `json:"cryptoProviders"`
}

type cryptoProviderConfig struct {
	UUID    string `json:"uuid"`
	Version string `json:"version"`
}

func loadDaemonConfig(path string) (*daemonConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, werr.Wrap(werr.KindResourceFault, opLoadConfig, err)
	}
	defer f.Close()

	var cfg daemonConfig
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, werr.Wrap(werr.KindInvalidArgument, opLoadConfig, err)
	}
	return &cfg, nil
}

type resolvedCryptoProvider struct {
	uuid    uuid.UUID
	version semver.Version
}

func (c *daemonConfig) resolveCryptoProviders() ([]resolvedCryptoProvider, error) {
	out := make([]resolvedCryptoProvider, 0, len(c.CryptoProviders))
	for _, p := range c.CryptoProviders {
		id, err := uuid.FromString(p.UUID)
		if err != nil {
			return nil, werr.Wrap(werr.KindInvalidArgument, opLoadConfig, err)
		}
		v, err := semver.Make(p.Version)
		if err != nil {
			return nil, werr.Wrap(werr.KindInvalidArgument, opLoadConfig, err)
		}
		out = append(out, resolvedCryptoProvider{uuid: id, version: v})
	}
	return out, nil
}
