package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/DeGatchi/vaportrade/internal/config"
)

func main() {
	// Define command-line flags
	configPath := flag.String("config", "", "Path to TOML configuration file (default: ~/.config/vaportrade/agent.toml if present)")
	port := flag.Int("port", 0, "P2P listen port (default: 4001, 0 for config value)")
	trackers := flag.String("trackers", "", "Comma-separated list of bootstrap tracker multiaddrs")
	dnsSeeds := flag.String("dns-seeds", "", "Comma-separated list of DNSADDR DNS names")
	mdns := flag.Bool("mdns", true, "Enable mDNS local peer discovery")
	socketPath := flag.String("socket", "", "Unix socket path for IPC (default: ~/.local/share/vaportrade/agent.sock)")
	walletPath := flag.String("wallet", "", "Path to the encrypted wallet key file")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	writeCfg := flag.Bool("write-config", false, "Write the effective configuration to the config file and exit")

	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	paths := config.DefaultPaths()
	if err := paths.EnsureDirectories(); err != nil {
		logger.Error("failed to create directories", "error", err)
		os.Exit(1)
	}

	cfg, err := buildConfig(flagValues{
		configPath: *configPath,
		port:       *port,
		trackers:   splitList(*trackers),
		dnsSeeds:   splitList(*dnsSeeds),
		mdns:       *mdns,
		socketPath: *socketPath,
		walletPath: *walletPath,
	}, paths)
	if err != nil {
		logger.Error("failed to build configuration", "error", err)
		os.Exit(1)
	}
	if *writeCfg {
		path, err := writeConfig(cfg, paths)
		if err != nil {
			logger.Error("failed to write configuration", "error", err)
			os.Exit(1)
		}
		logger.Info("configuration written", "path", path)
		return
	}
	if pass := os.Getenv("VAPORTRADE_PASSPHRASE"); pass != "" {
		cfg.Passphrase = pass
	}
	cfg.Mnemonic = strings.TrimSpace(os.Getenv("VAPORTRADE_MNEMONIC"))

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	daemon, err := NewDaemon(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create daemon", "error", err)
		os.Exit(1)
	}

	logger.Info("starting vaportrade-agent daemon",
		"port", cfg.Agent.Network.Port,
		"socket", cfg.SocketPath,
		"mdns", cfg.Agent.Trackers.MDNSEnabled,
		"trackers", cfg.Agent.Trackers.Sources,
		"dns_seeds", cfg.Agent.Trackers.DNSSeeds,
	)

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon error", "error", err)
		os.Exit(1)
	}

	logger.Info("daemon stopped gracefully")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

type flagValues struct {
	configPath string
	port       int
	trackers   []string
	dnsSeeds   []string
	mdns       bool
	socketPath string
	walletPath string
}

// buildConfig creates a DaemonConfig from file and/or flags.
// Flags override file settings.
func buildConfig(f flagValues, paths config.Paths) (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()
	cfg.SocketPath = paths.AgentSocket
	cfg.Agent.Wallet.KeyPath = paths.WalletPath

	configPath := f.configPath
	if configPath == "" {
		// The default file is optional.
		if _, err := os.Stat(paths.ConfigFile); err == nil {
			configPath = paths.ConfigFile
		}
	}
	if configPath != "" {
		fileCfg, err := config.LoadAgentConfig(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg.Agent = *fileCfg
		cfg.ConfigPath = configPath
	}

	if f.port != 0 {
		cfg.Agent.Network.Port = f.port
	}
	if len(f.trackers) > 0 {
		cfg.Agent.Trackers.Sources = f.trackers
	}
	if len(f.dnsSeeds) > 0 {
		cfg.Agent.Trackers.DNSSeeds = f.dnsSeeds
	}
	// The flag defaults to true, so only an explicit -mdns=false overrides.
	if !f.mdns {
		cfg.Agent.Trackers.MDNSEnabled = false
	}
	if f.socketPath != "" {
		cfg.SocketPath = config.ExpandPath(f.socketPath)
	}
	if f.walletPath != "" {
		cfg.Agent.Wallet.KeyPath = config.ExpandPath(f.walletPath)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// writeConfig saves the agent section of cfg to the file it was loaded
// from, or to the default config file.
func writeConfig(cfg DaemonConfig, paths config.Paths) (string, error) {
	path := cfg.ConfigPath
	if path == "" {
		path = paths.ConfigFile
	}
	if err := cfg.Agent.Save(path); err != nil {
		return "", err
	}
	return path, nil
}
