package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/danmuck/ledgerd/internal/types"
	"github.com/pelletier/go-toml/v2"
)

// NodeConfig is the on-disk form of a ledgerd node configuration.
type NodeConfig struct {
	Node       NodeSection       `toml:"node"`
	BinaryPort BinaryPortSection `toml:"binary_port"`
	Admin      AdminSection      `toml:"admin"`
	Genesis    []GenesisEntry    `toml:"genesis"`
	Peers      []PeerEntry       `toml:"peers"`
}

type NodeSection struct {
	ID              string `toml:"id"`
	NetworkName     string `toml:"network_name"`
	ChainName       string `toml:"chain_name"`
	Version         string `toml:"version"`
	ChainspecPath   string `toml:"chainspec_path"`
	BlockInterval   string `toml:"block_interval"`
	TimestampLeeway string `toml:"timestamp_leeway"`
	LogLevel        string `toml:"log_level"`
}

type BinaryPortSection struct {
	Enabled              bool   `toml:"enabled"`
	Address              string `toml:"address"`
	MaxConnections       int    `toml:"max_connections"`
	QPSLimit             int    `toml:"qps_limit"`
	MaxFrameBytes        int    `toml:"max_frame_bytes"`
	MaxResponseBytes     int    `toml:"max_response_bytes"`
	IdleTimeout          string `toml:"idle_timeout"`
	ReadTimeout          string `toml:"read_timeout"`
	WriteTimeout         string `toml:"write_timeout"`
	InitialLifetime      string `toml:"initial_lifetime"`
	AllowAllItems        bool   `toml:"allow_all_items"`
	AllowTrie            bool   `toml:"allow_trie"`
	AllowSpeculativeExec bool   `toml:"allow_speculative_exec"`
}

type AdminSection struct {
	Address     string   `toml:"address"`
	Token       string   `toml:"token"`
	CorsOrigins []string `toml:"cors_origins"`
}

type GenesisEntry struct {
	// Account is the hex account digest.
	Account string `toml:"account"`
	Balance uint64 `toml:"balance"`
}

type PeerEntry struct {
	ID      string `toml:"id"`
	Address string `toml:"address"`
}

func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Node: NodeSection{
			ID:              "ledgerd.local",
			NetworkName:     "ledger-devnet",
			ChainName:       "ledger-dev",
			Version:         "0.1.0",
			BlockInterval:   "5s",
			TimestampLeeway: "2s",
			LogLevel:        "info",
		},
		BinaryPort: BinaryPortSection{
			Enabled:         true,
			Address:         "127.0.0.1:7779",
			MaxConnections:  5,
			QPSLimit:        110,
			MaxFrameBytes:   4 << 20,
			IdleTimeout:     "30s",
			ReadTimeout:     "10s",
			WriteTimeout:    "10s",
			InitialLifetime: "10s",
		},
		Admin: AdminSection{
			Address:     "127.0.0.1:9100",
			CorsOrigins: []string{"http://localhost:3000"},
		},
	}
}

// LoadNodeConfig overlays the file at path on DefaultNodeConfig and
// validates the result.
func LoadNodeConfig(path string) (NodeConfig, error) {
	cfg := DefaultNodeConfig()
	if err := loadToml(path, &cfg); err != nil {
		return NodeConfig{}, err
	}
	if err := ValidateNodeConfig(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateNodeConfig(cfg NodeConfig) error {
	if strings.TrimSpace(cfg.Node.ID) == "" {
		return fmt.Errorf("node config missing node.id")
	}
	if strings.TrimSpace(cfg.Node.ChainName) == "" {
		return fmt.Errorf("node config missing node.chain_name")
	}
	if err := validateDuration("node.block_interval", cfg.Node.BlockInterval, true); err != nil {
		return err
	}
	if err := validateDuration("node.timestamp_leeway", cfg.Node.TimestampLeeway, false); err != nil {
		return err
	}
	if err := ValidateBinaryPort(cfg.BinaryPort); err != nil {
		return fmt.Errorf("binary_port invalid: %w", err)
	}
	if addr := strings.TrimSpace(cfg.Admin.Address); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("admin.address invalid: %w", err)
		}
	}
	for i, g := range cfg.Genesis {
		if _, err := types.DigestFromHex(g.Account); err != nil {
			return fmt.Errorf("genesis[%d] account invalid: %w", i, err)
		}
	}
	for i, p := range cfg.Peers {
		if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Address) == "" {
			return fmt.Errorf("peers[%d] requires id and address", i)
		}
	}
	return nil
}

func ValidateBinaryPort(cfg BinaryPortSection) error {
	if !cfg.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(strings.TrimSpace(cfg.Address)); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	if cfg.MaxConnections < 0 || cfg.QPSLimit < 0 {
		return fmt.Errorf("max_connections and qps_limit must not be negative")
	}
	if cfg.MaxFrameBytes < 0 || cfg.MaxResponseBytes < 0 {
		return fmt.Errorf("frame limits must not be negative")
	}
	for _, d := range []struct{ name, raw string }{
		{"idle_timeout", cfg.IdleTimeout},
		{"read_timeout", cfg.ReadTimeout},
		{"write_timeout", cfg.WriteTimeout},
		{"initial_lifetime", cfg.InitialLifetime},
	} {
		if err := validateDuration(d.name, d.raw, false); err != nil {
			return err
		}
	}
	return nil
}

// validateDuration accepts an empty value unless required.
func validateDuration(name, raw string, required bool) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 || (required && d == 0) {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

func parseDuration(raw string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return d
}
