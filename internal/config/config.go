// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Paths holds XDG-compliant paths for vaportrade.
type Paths struct {
	ConfigDir   string // ~/.config/vaportrade
	DataDir     string // ~/.local/share/vaportrade
	ConfigFile  string // ~/.config/vaportrade/agent.toml
	AgentSocket string // ~/.local/share/vaportrade/agent.sock
	WalletPath  string // ~/.local/share/vaportrade/wallet.key
}

// ExpandPath expands ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
// Panics if home directory cannot be determined when ~ expansion is needed.
func ExpandPath(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultPaths returns the default XDG-compliant paths.
// Panics if the user's home directory cannot be determined.
func DefaultPaths() Paths {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Sprintf("failed to get home directory: %v", err))
	}
	configDir := filepath.Join(home, ".config", "vaportrade")
	dataDir := filepath.Join(home, ".local", "share", "vaportrade")

	return Paths{
		ConfigDir:   configDir,
		DataDir:     dataDir,
		ConfigFile:  filepath.Join(configDir, "agent.toml"),
		AgentSocket: filepath.Join(dataDir, "agent.sock"),
		WalletPath:  filepath.Join(dataDir, "wallet.key"),
	}
}

// EnsureDirectories creates config and data directories if they don't exist.
func (p Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.ConfigDir, 0700); err != nil {
		return err
	}
	return os.MkdirAll(p.DataDir, 0700)
}

// AgentConfig holds configuration for vaportrade-agent.
type AgentConfig struct {
	Network  NetworkConfig  `toml:"network"`
	Trackers TrackersConfig `toml:"trackers"`
	Wallet   WalletConfig   `toml:"wallet"`
	Trade    TradeConfig    `toml:"trade"`
}

// NetworkConfig holds P2P network settings.
type NetworkConfig struct {
	Port int `toml:"port"`
}

// TrackersConfig lists the rendezvous points. Sources are bootstrap
// multiaddrs; DNSSeeds are domains resolved through _dnsaddr TXT records.
// Both count as tracker sources.
type TrackersConfig struct {
	Sources                  []string `toml:"sources"`
	DNSSeeds                 []string `toml:"dns_seeds"`
	MDNSEnabled              bool     `toml:"mdns_enabled"`
	Rendezvous               string   `toml:"rendezvous"`
	DiscoveryIntervalSeconds int      `toml:"discovery_interval_seconds"`
	DNSTimeoutSeconds        int      `toml:"dns_timeout_seconds"`
}

// WalletConfig holds wallet storage settings.
type WalletConfig struct {
	KeyPath string `toml:"key_path"`
}

// TradeConfig holds negotiation settings.
type TradeConfig struct {
	ChatHistory int `toml:"chat_history"`
}

// Validation errors.
var (
	ErrInvalidPort     = errors.New("config: port must be between 0 and 65535")
	ErrInvalidInterval = errors.New("config: intervals must not be negative")
	ErrInvalidHistory  = errors.New("config: chat_history must not be negative")
)

// DefaultAgentConfig returns an AgentConfig with sensible defaults.
func DefaultAgentConfig() AgentConfig {
	paths := DefaultPaths()
	return AgentConfig{
		Network: NetworkConfig{
			Port: 4001,
		},
		Trackers: TrackersConfig{
			Sources:                  []string{},
			DNSSeeds:                 []string{},
			MDNSEnabled:              true,
			Rendezvous:               "vaportrade",
			DiscoveryIntervalSeconds: 30,
			DNSTimeoutSeconds:        10,
		},
		Wallet: WalletConfig{
			KeyPath: paths.WalletPath,
		},
		Trade: TradeConfig{
			ChatHistory: 200,
		},
	}
}

// LoadAgentConfig loads an AgentConfig from a TOML file over the defaults.
// Paths with ~ are expanded to the user's home directory.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultAgentConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	cfg.Wallet.KeyPath = ExpandPath(cfg.Wallet.KeyPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config as TOML.
func (c AgentConfig) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode TOML: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks value ranges.
func (c AgentConfig) Validate() error {
	if c.Network.Port < 0 || c.Network.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Network.Port)
	}
	if c.Trackers.DiscoveryIntervalSeconds < 0 || c.Trackers.DNSTimeoutSeconds < 0 {
		return ErrInvalidInterval
	}
	if c.Trade.ChatHistory < 0 {
		return ErrInvalidHistory
	}
	return nil
}

// DiscoveryInterval returns the rediscovery period.
func (c AgentConfig) DiscoveryInterval() time.Duration {
	return time.Duration(c.Trackers.DiscoveryIntervalSeconds) * time.Second
}

// DNSTimeout returns the DNS seed resolution timeout.
func (c AgentConfig) DNSTimeout() time.Duration {
	return time.Duration(c.Trackers.DNSTimeoutSeconds) * time.Second
}
