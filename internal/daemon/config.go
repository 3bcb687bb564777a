// Package daemon implements the remote endpoint of the transfer engine: TOML
// module configuration (github.com/BurntSushi/toml, mirroring config.rs's
// serde/toml pair) and the gRPC BlitServer that fields Push/Pull requests
// over the hand-rolled control plane in internal/blitrpc.
package daemon

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ModuleConfig names one exported directory tree (config.rs's ModuleConfig).
type ModuleConfig struct {
	Path     string `toml:"path"`
	ReadOnly bool   `toml:"read_only"`
	Comment  string `toml:"comment"`
}

// Config is the daemon's top-level TOML document.
type Config struct {
	BindAddress        string                  `toml:"bind_address"`
	Port               uint16                  `toml:"port"`
	MOTD               string                  `toml:"motd"`
	NoServerChecksums  bool                    `toml:"no_server_checksums"`
	Modules            map[string]ModuleConfig `toml:"modules"`
}

// LoadConfig reads and parses a daemon config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("daemon: reading config %s: %w", path, err)
	}
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("daemon: parsing config %s: %w", path, err)
	}
	if cfg.Port == 0 {
		cfg.Port = 50051
	}
	if cfg.BindAddress == "" {
		cfg.BindAddress = "0.0.0.0"
	}
	return cfg, nil
}

// resolveModule looks name up in the configured module map. There is no
// implicit root export: an empty name (what the root-relative endpoint form
// yields) resolves only if a module is configured under the empty name.
func (c Config) resolveModule(name string) (ModuleConfig, error) {
	mc, ok := c.Modules[name]
	if !ok {
		return ModuleConfig{}, fmt.Errorf("daemon: module %q not found", name)
	}
	return mc, nil
}
