package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, uint16(69), cfg.Port)
	require.Equal(t, "", cfg.Listen)
	require.Equal(t, uint32(5), cfg.TimeoutSeconds)
	require.Equal(t, uint32(16), cfg.MaxTransfers)
	require.False(t, cfg.Verbose)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tftpd.toml")
	content := `
root = "/srv/tftp"
listen = "127.0.0.1"
port = 6969
verbose = true
max_transfers = 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/srv/tftp", cfg.Root)
	require.Equal(t, "127.0.0.1", cfg.Listen)
	require.Equal(t, uint16(6969), cfg.Port)
	require.True(t, cfg.Verbose)
	require.Equal(t, uint32(4), cfg.MaxTransfers)

	// untouched keys keep their defaults
	require.Equal(t, uint32(5), cfg.TimeoutSeconds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = \"not a number"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
