// Command cryptd is the crypto service daemon: it isolates the
// key-storage provider and the crypto/X.509 provider plugins behind
// the RPC bridge of pkg/server, exposing proxies to client processes
// over a local UNIX-domain socket (spec.md §1, §6).
//
// Grounded on krd/main.go's shape almost directly: the same
// defer/recover top-level panic log, the same signal.Notify set, the
// same goroutine-per-listener accept loop.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/blang/semver"
	"github.com/op/go-logging"
	uuid "github.com/satori/go.uuid"

	"cryptdaemon.dev/cryptd/pkg/acl"
	"cryptdaemon.dev/cryptd/pkg/crypto"
	"cryptdaemon.dev/cryptd/pkg/keystore"
	log2 "cryptdaemon.dev/cryptd/pkg/logging"
	"cryptdaemon.dev/cryptd/pkg/rpc"
	"cryptdaemon.dev/cryptd/pkg/security"
	"cryptdaemon.dev/cryptd/pkg/server"
	"cryptdaemon.dev/cryptd/pkg/transport"
	"cryptdaemon.dev/cryptd/pkg/x509prov"
)

var buildVersion = semver.MustParse("1.0.0")

func useSyslog(cfg *daemonConfig) bool {
	if env := os.Getenv("CRYPTD_LOG_SYSLOG"); env != "" {
		return env == "true"
	}
	return cfg.Server.Syslog
}

func main() {
	configPath := flag.String("config", "/etc/cryptd/config.json", "path to the daemon configuration description")
	flag.Parse()

	cfg, err := loadDaemonConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cryptd: loading configuration:", err)
		os.Exit(1)
	}

	log := log2.SetupLogging("cryptd", logging.INFO, useSyslog(cfg))

	defer func() {
		if x := recover(); x != nil {
			log.Error(fmt.Sprintf("run time panic: %v", x))
			log.Error(string(debug.Stack()))
			panic(x)
		}
	}()

	if err := run(cfg, log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(cfg *daemonConfig, log *logging.Logger) error {
	aclConfig, err := acl.LoadFile(cfg.Server.KeyAccessControl)
	if err != nil {
		return err
	}

	var reporter security.Reporter = security.NoopReporter{}
	if cfg.Server.IdsmReporting {
		r, err := security.NewSNSReporter(cfg.Server.IdsmTopicARN, cfg.Server.IdsmRegion, cfg.Server.IdsmAccessKeyID, cfg.Server.IdsmSecretKey)
		if err != nil {
			log.Warningf("idsm reporting disabled: %v", err)
		} else {
			reporter = r
		}
	}

	keystoreProvider := keystore.NewProvider(aclConfig, reporter, nil)
	slots, err := keystore.LoadOrInitDatabase(cfg.Server.KeyDatabase)
	if err != nil {
		return err
	}
	for _, s := range slots {
		keystoreProvider.AddSlot(s)
	}

	cryptoProviders, err := cfg.resolveCryptoProviders()
	if err != nil {
		return err
	}
	providers := make([]crypto.Provider, 0, len(cryptoProviders))
	for _, p := range cryptoProviders {
		providers = append(providers, crypto.NewStaticProvider(p.uuid, p.version))
	}
	cryptoFactory := crypto.NewStaticFactory(providers...)

	x509Access := x509prov.AccessConfig{
		CAConnectorUID: cfg.X509.Access.CAConnectorID,
		TrustMasterUID: cfg.X509.Access.TrustmasterID,
	}
	x509Provider := x509prov.NewStoreProvider(cfg.X509.StorageRoot)

	handshake := server.NewHandshakeProcessor()

	keystoreProviderUUID := uuid.NewV4()
	handshake.Register(keystoreProviderUUID, func(id rpc.ProxyID) (any, rpc.Identifiable, error) {
		built := server.NewKeystoreSkeleton(id, keystoreProvider)
		return built, built.Impl, nil
	})

	x509ProviderUUID := uuid.NewV4()
	handshake.Register(x509ProviderUUID, func(id rpc.ProxyID) (any, rpc.Identifiable, error) {
		built := server.NewX509Skeleton(id, x509Provider, x509Access)
		return built, built.Impl, nil
	})

	for _, p := range cryptoProviders {
		provider, _ := cryptoFactory.Lookup(p.uuid)
		providerUUID := p.uuid
		buildTime := uint32(0)
		handshake.Register(providerUUID, func(id rpc.ProxyID) (any, rpc.Identifiable, error) {
			built := server.NewCryptoSkeleton(id, provider, buildTime)
			return built, built.Impl, nil
		})
	}

	log.Noticef("key-storage provider registered under %s", keystoreProviderUUID)
	log.Noticef("x.509 provider registered under %s", x509ProviderUUID)

	runtime := server.NewRuntime(handshake, keystoreProvider, cfg.Server.MaxConnectionNum)

	socketPath := cfg.Server.SocketPath
	if socketPath == "" {
		p, err := transport.SocketPath()
		if err != nil {
			return err
		}
		socketPath = p
	}
	listener, err := transport.Listen(socketPath)
	if err != nil {
		return err
	}
	defer listener.Close()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- runtime.Serve(listener)
	}()

	log.Notice("cryptd launched and listening on", socketPath)

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, os.Kill, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-stopSignal:
		log.Notice("stopping with signal", sig)
		runtime.Shutdown()
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	if cfg.Server.JournalPath != "" {
		if err := keystoreProvider.Persist(cfg.Server.JournalPath); err != nil {
			log.Warningf("final journal persist failed: %v", err)
		}
	}
	return nil
}
