package main

import (
	"os"
	"path/filepath"
	"testing"

	"AgentBounty/internal/registry"
	"AgentBounty/internal/types"
)

// writeConfig writes a TOML file into a temporary directory.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "node.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

// TestParseFlags_Defaults verifies the built-in defaults.
func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	if cfg.DataPath != "./data" || cfg.HTTPAddress != ":8080" || cfg.LogLevel != "info" || cfg.EventBuffer != 64 {
		t.Errorf("unexpected defaults %+v", cfg)
	}

	if cfg.Faucet || cfg.Bootstrap {
		t.Error("faucet and bootstrap must default to off")
	}

	vault, err := cfg.feeVault()
	if err != nil || vault != registry.FeeVault {
		t.Errorf("fee vault = %v, %v", vault, err)
	}
}

// TestParseFlags_FileAndOverrides verifies file values apply unless a flag was given.
func TestParseFlags_FileAndOverrides(t *testing.T) {
	vault := types.Derive([]byte("custom vault"))

	path := writeConfig(t, `
data_dir = "/var/lib/agentbounty"
http_addr = ":9090"
faucet = true
log_level = "debug"
event_buffer = 8
fee_vault = "`+vault.String()+`"
`)

	cfg, err := parseFlags([]string{"-config", path, "-http", ":7070"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	if cfg.DataPath != "/var/lib/agentbounty" {
		t.Errorf("data = %q", cfg.DataPath)
	}
	if cfg.HTTPAddress != ":7070" {
		t.Errorf("explicit flag lost to file: http = %q", cfg.HTTPAddress)
	}
	if !cfg.Faucet || cfg.LogLevel != "debug" || cfg.EventBuffer != 8 {
		t.Errorf("file values not applied: %+v", cfg)
	}

	got, err := cfg.feeVault()
	if err != nil || got != vault {
		t.Errorf("fee vault = %v, %v", got, err)
	}
}

// TestParseFlags_Invalid verifies bad settings are rejected at parse time.
func TestParseFlags_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args func(t *testing.T) []string
	}{
		{"bad level", func(*testing.T) []string { return []string{"-log-level", "loud"} }},
		{"bad vault", func(*testing.T) []string { return []string{"-fee-vault", "xyz"} }},
		{"zero buffer", func(*testing.T) []string { return []string{"-event-buffer", "0"} }},
		{"unknown key", func(t *testing.T) []string { return []string{"-config", writeConfig(t, "colour = true\n")} }},
		{"missing file", func(*testing.T) []string { return []string{"-config", "/nonexistent/node.toml"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args(t)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// TestLoadOrGenerateKey verifies a generated key is persisted and reloaded.
func TestLoadOrGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	first, err := loadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	second, err := loadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if !first.Equal(second) {
		t.Error("reloaded key differs")
	}

	if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := loadOrGenerateKey(path); err == nil {
		t.Error("truncated key accepted")
	}
}

// TestNewNode_Bootstrap verifies a bootstrapped node initializes the protocol once.
func TestNewNode_Bootstrap(t *testing.T) {
	cfg := defaultConfig()
	cfg.DataPath = t.TempDir()
	cfg.Bootstrap = true

	key, err := generateNewKey()
	if err != nil {
		t.Fatalf("generateNewKey failed: %v", err)
	}
	cfg.PrivateKey = key

	for i := 0; i < 2; i++ {
		n, err := NewNode(cfg)
		if err != nil {
			t.Fatalf("NewNode #%d failed: %v", i, err)
		}

		stats, err := n.machine.Stats()
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}

		var want types.Pubkey
		copy(want[:], key[32:])
		if stats.Protocol.Authority != want {
			t.Errorf("authority = %s", stats.Protocol.Authority.Short())
		}

		if err := n.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}
}
