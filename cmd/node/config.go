package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"AgentBounty/internal/logger"
	"AgentBounty/internal/registry"
	"AgentBounty/internal/types"
)

// Config holds the node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// KeyPath is the path to the Ed25519 private key file.
	KeyPath string

	// PrivateKey is the node's Ed25519 key. Its public half is the protocol authority.
	PrivateKey ed25519.PrivateKey

	// Bootstrap initializes the protocol singleton at startup if it is missing.
	Bootstrap bool

	// Faucet enables POST /accounts/{pubkey}/deposit.
	Faucet bool

	// FeeVault is the hex identity credited with fees (derived default when empty).
	FeeVault string

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string

	// EventBuffer is the per-subscriber event queue length.
	EventBuffer int

	// ConfigPath is an optional TOML file layered under the flags.
	ConfigPath string
}

// fileConfig is the TOML file layout.
type fileConfig struct {
	DataPath    string `toml:"data_dir"`
	HTTPAddress string `toml:"http_addr"`
	KeyPath     string `toml:"key_path"`
	Bootstrap   bool   `toml:"bootstrap"`
	Faucet      bool   `toml:"faucet"`
	FeeVault    string `toml:"fee_vault"`
	LogLevel    string `toml:"log_level"`
	EventBuffer int    `toml:"event_buffer"`
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *Config {
	return &Config{
		DataPath:    "./data",
		HTTPAddress: ":8080",
		LogLevel:    "info",
		EventBuffer: 64,
	}
}

// parseFlags parses command-line flags into Config. Values come from the
// defaults, then the -config file, then flags given explicitly on the
// command line.
func parseFlags(args []string) (*Config, error) {
	cfg := defaultConfig()
	fs := flag.NewFlagSet("node", flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigPath, "config", "", "TOML configuration file")
	fs.StringVar(&cfg.DataPath, "data", cfg.DataPath, "Data directory path")
	fs.StringVar(&cfg.HTTPAddress, "http", cfg.HTTPAddress, "HTTP API address")
	fs.StringVar(&cfg.KeyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	fs.BoolVar(&cfg.Bootstrap, "bootstrap", false, "Initialize the protocol with this node as authority")
	fs.BoolVar(&cfg.Faucet, "faucet", false, "Enable the account deposit endpoint")
	fs.StringVar(&cfg.FeeVault, "fee-vault", "", "Fee vault identity (hex, defaults to the derived vault)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Minimum log level")
	fs.IntVar(&cfg.EventBuffer, "event-buffer", cfg.EventBuffer, "Per-subscriber event buffer")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.ConfigPath != "" {
		explicit := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

		if err := applyFile(cfg, cfg.ConfigPath, explicit); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFile overlays keys defined in the TOML file at path, skipping
// settings whose flag was given explicitly.
func applyFile(cfg *Config, path string, explicit map[string]bool) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s:\n%w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	set := func(key, flagName string, apply func()) {
		if meta.IsDefined(key) && !explicit[flagName] {
			apply()
		}
	}

	set("data_dir", "data", func() { cfg.DataPath = strings.TrimSpace(raw.DataPath) })
	set("http_addr", "http", func() { cfg.HTTPAddress = strings.TrimSpace(raw.HTTPAddress) })
	set("key_path", "key", func() { cfg.KeyPath = strings.TrimSpace(raw.KeyPath) })
	set("bootstrap", "bootstrap", func() { cfg.Bootstrap = raw.Bootstrap })
	set("faucet", "faucet", func() { cfg.Faucet = raw.Faucet })
	set("fee_vault", "fee-vault", func() { cfg.FeeVault = strings.TrimSpace(raw.FeeVault) })
	set("log_level", "log-level", func() { cfg.LogLevel = strings.TrimSpace(raw.LogLevel) })
	set("event_buffer", "event-buffer", func() { cfg.EventBuffer = raw.EventBuffer })

	return nil
}

// validate checks values that would otherwise fail later at startup.
func (c *Config) validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("data directory must not be empty")
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.EventBuffer <= 0 {
		return fmt.Errorf("event buffer must be positive, got %d", c.EventBuffer)
	}

	if _, err := c.feeVault(); err != nil {
		return err
	}

	return nil
}

// feeVault resolves the configured fee vault identity.
func (c *Config) feeVault() (types.Pubkey, error) {
	if c.FeeVault == "" {
		return registry.FeeVault, nil
	}

	vault, err := types.ParsePubkey(c.FeeVault)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("invalid fee vault:\n%w", err)
	}

	return vault, nil
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
