package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/DeGatchi/vaportrade/internal/config"
	"github.com/DeGatchi/vaportrade/internal/discovery"
	"github.com/DeGatchi/vaportrade/internal/ipc"
	"github.com/DeGatchi/vaportrade/internal/trade"
	"github.com/DeGatchi/vaportrade/internal/transport"
	"github.com/DeGatchi/vaportrade/internal/wallet"
)

// Default wallet passphrase, used when VAPORTRADE_PASSPHRASE is unset.
const defaultWalletPassphrase = "vaportrade-agent-wallet"

// DaemonConfig holds configuration for the agent daemon.
type DaemonConfig struct {
	Agent      config.AgentConfig
	SocketPath string
	// ConfigPath is watched for tracker source changes when set.
	ConfigPath string
	Passphrase string
	// Mnemonic, when set, recovers the wallet instead of loading the key file.
	Mnemonic string
}

// Validate checks that all required configuration fields are set.
func (c *DaemonConfig) Validate() error {
	if c.SocketPath == "" {
		return errors.New("socket path is required")
	}
	if c.Agent.Wallet.KeyPath == "" && c.Mnemonic == "" {
		return errors.New("wallet key path is required")
	}
	return c.Agent.Validate()
}

// DefaultDaemonConfig returns a DaemonConfig with sensible defaults.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		Agent:      config.DefaultAgentConfig(),
		SocketPath: config.DefaultPaths().AgentSocket,
		Passphrase: defaultWalletPassphrase,
	}
}

// trackerSource lets the host dial the current tracker list while the
// config watcher swaps it underneath.
type trackerSource struct {
	mu     sync.RWMutex
	disc   *discovery.Manager
	logger *slog.Logger
}

func newTrackerSource(cfg config.AgentConfig, logger *slog.Logger) *trackerSource {
	ts := &trackerSource{logger: logger}
	ts.update(cfg)
	return ts
}

func (ts *trackerSource) update(cfg config.AgentConfig) {
	disc := discovery.NewManagerWithLogger(discovery.ManagerConfig{
		Bootstrap:  cfg.Trackers.Sources,
		DNSSeeds:   cfg.Trackers.DNSSeeds,
		DNSTimeout: cfg.DNSTimeout(),
	}, ts.logger)

	ts.mu.Lock()
	ts.disc = disc
	ts.mu.Unlock()
}

// Sources returns the announce URLs the trade manager accepts.
func (ts *trackerSource) Sources() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.disc.Sources()
}

// Trackers implements transport.TrackerSource.
func (ts *trackerSource) Trackers(ctx context.Context) []discovery.Tracker {
	ts.mu.RLock()
	disc := ts.disc
	ts.mu.RUnlock()
	return disc.Trackers(ctx)
}

// Daemon is the agent daemon: it owns the wallet, the transport, the trade
// manager and the IPC socket.
type Daemon struct {
	cfg      DaemonConfig
	wallet   *wallet.Wallet
	tr       transport.Transport
	trackers *trackerSource
	manager  *trade.Manager
	logger   *slog.Logger
}

// NewDaemon creates a new agent daemon listening on libp2p.
func NewDaemon(ctx context.Context, cfg DaemonConfig, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	w, err := loadWallet(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	trackers := newTrackerSource(cfg.Agent, logger)
	host, err := transport.NewHost(ctx, transport.HostConfig{
		Port:              cfg.Agent.Network.Port,
		Trackers:          trackers,
		Rendezvous:        cfg.Agent.Trackers.Rendezvous,
		DiscoveryInterval: cfg.Agent.DiscoveryInterval(),
		MDNS:              cfg.Agent.Trackers.MDNSEnabled,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create host: %w", err)
	}
	logger.Info("libp2p host ready",
		"peer_id", host.ID().String(),
		"addrs", host.P2PAddrs(),
	)

	d, err := newDaemon(cfg, w, host, trackers, logger)
	if err != nil {
		host.Close()
		return nil, err
	}
	return d, nil
}

func newDaemon(cfg DaemonConfig, w *wallet.Wallet, tr transport.Transport, trackers *trackerSource, logger *slog.Logger) (*Daemon, error) {
	manager, err := trade.NewManager(tr, trade.Config{
		LocalAddress: w.Address(),
		Sources:      trackers.Sources(),
		ChatHistory:  cfg.Agent.Trade.ChatHistory,
		Signer:       w,
		Verifier:     w,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trade manager: %w", err)
	}

	return &Daemon{
		cfg:      cfg,
		wallet:   w,
		tr:       tr,
		trackers: trackers,
		manager:  manager,
		logger:   logger,
	}, nil
}

// loadWallet recovers the wallet from a mnemonic or loads the encrypted key
// file, generating one on first run.
func loadWallet(cfg DaemonConfig, logger *slog.Logger) (*wallet.Wallet, error) {
	if cfg.Mnemonic != "" {
		w, err := wallet.FromMnemonic(cfg.Mnemonic)
		if err != nil {
			return nil, err
		}
		logger.Info("recovered wallet from mnemonic", "address", w.Address())
		return w, nil
	}

	path := cfg.Agent.Wallet.KeyPath
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create wallet directory: %w", err)
	}
	w, created, err := wallet.LoadOrCreate(path, cfg.Passphrase)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("generated new wallet",
			"path", path,
			"address", w.Address(),
			"fingerprint", w.Fingerprint(),
		)
	} else {
		logger.Info("loaded wallet",
			"path", path,
			"address", w.Address(),
		)
	}
	return w, nil
}

// Address returns the local wallet address.
func (d *Daemon) Address() string {
	return d.wallet.Address()
}

// Manager returns the trade manager.
func (d *Daemon) Manager() *trade.Manager {
	return d.manager
}

// Run starts the IPC server, the config watcher and the trade manager, and
// blocks until ctx is cancelled or the manager stops.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(d.cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	server, err := ipc.NewServer(d.cfg.SocketPath, d.manager, d.logger)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		d.logger.Info("starting gRPC server", "socket", d.cfg.SocketPath)
		serverErr <- server.Start()
	}()

	if d.cfg.ConfigPath != "" {
		if err := d.watchConfig(ctx); err != nil {
			d.logger.Warn("config reload disabled", "path", d.cfg.ConfigPath, "error", err)
		}
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- d.manager.Run(ctx)
	}()

	d.logger.Info("agent daemon running",
		"address", d.wallet.Address(),
		"trackers", d.trackers.Sources(),
	)

	select {
	case <-ctx.Done():
		d.logger.Info("shutting down daemon")
		err = <-runErr
	case err = <-runErr:
		if err != nil {
			d.logger.Error("trade manager stopped", "error", err)
		}
	case err = <-serverErr:
		if err != nil {
			d.logger.Error("server error", "error", err)
		}
		cancel()
		<-runErr
	}

	return errors.Join(err, d.shutdown(server))
}

// watchConfig feeds tracker source changes from the config file into the
// host and the trade manager.
func (d *Daemon) watchConfig(ctx context.Context) error {
	reloads := make(chan *config.AgentConfig, 1)
	w, err := config.NewWatcher(d.cfg.ConfigPath, reloads)
	if err != nil {
		return err
	}
	w.SetErrorCallback(func(err error) {
		d.logger.Warn("config reload failed", "path", d.cfg.ConfigPath, "error", err)
	})

	go w.Start(ctx)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case cfg := <-reloads:
				d.applyConfig(ctx, cfg)
			}
		}
	}()
	return nil
}

// applyConfig hands the manager the new sources before the host can dial
// them, so every tracker the host reports is already known.
func (d *Daemon) applyConfig(ctx context.Context, cfg *config.AgentConfig) {
	sources := discovery.SourceList(cfg.Trackers.Sources, cfg.Trackers.DNSSeeds)
	if err := d.manager.UpdateSources(ctx, sources); err != nil {
		d.logger.Warn("failed to update tracker sources", "error", err)
		return
	}
	d.trackers.update(*cfg)
	d.logger.Info("tracker sources reloaded", "sources", sources)
	d.tr.RequestMorePeers()
}

func (d *Daemon) shutdown(server *ipc.Server) error {
	var errs []error

	server.Stop()
	if err := d.tr.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
	}
	return errors.Join(errs...)
}

// Close releases the transport without running the full shutdown sequence.
// This is useful for tests that don't call Run().
func (d *Daemon) Close() error {
	return d.tr.Close()
}
