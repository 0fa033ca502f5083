package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the tftpd server configuration. Values left out of the file keep
// their defaults; command-line flags override both.
type Config struct {
	Root           string `toml:"root"`
	Listen         string `toml:"listen"`
	Port           uint16 `toml:"port"`
	Verbose        bool   `toml:"verbose"`
	TimeoutSeconds uint32 `toml:"timeout_seconds"`
	MaxTransfers   uint32 `toml:"max_transfers"`
}

func Default() Config {
	return Config{
		Listen:         "",
		Port:           69,
		TimeoutSeconds: 5,
		MaxTransfers:   16,
	}
}

// Load reads a TOML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}
