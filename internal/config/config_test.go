package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	require := require.New(t)

	_, err := Load(nil)
	require.EqualError(err, "No nil buffer as config file")

	_, err = Load([]byte("[Device]\nCircuitIDBase = 5\n"))
	require.Error(err, "Entry block is mandatory")

	minimal := `
[Entry]
Address = "[2001:db8::1]:4433"
`
	cfg, err := Load([]byte(minimal))
	require.NoError(err)
	require.Equal(uint32(17), cfg.Device.CircuitIDBase)
	require.Equal(3*time.Second, cfg.Device.ReconnectDelay.Duration)
	require.Equal("2001:db8::1", cfg.Entry.ServerName)
	require.Equal("tor4iot", cfg.Entry.ALPN)
	require.Equal("NOTICE", cfg.Logging.Level)
	require.Equal([32]byte{}, cfg.Device.IdentityBytes())

	km := cfg.Keys.Material()
	for i := 0; i < 16; i++ {
		require.Equal(byte(i), km.Ticket[i])
		require.Equal(byte(i), km.MAC[i])
		require.Equal(byte(i), km.FastAck[i])
	}

	full := `
[Device]
Identity = "0101010101010101010101010101010101010101010101010101010101010101"
CircuitIDBase = 100
ReconnectDelay = "250ms"

[Keys]
Ticket = "ffeeddccbbaa99887766554433221100"

[Entry]
Address = "entry.example:4433"
ServerName = "relay.example"
InsecureSkipVerify = true

[Logging]
Level = "debug"

[Metrics]
Address = "127.0.0.1:9100"
`
	cfg, err = Load([]byte(full))
	require.NoError(err)
	require.Equal(uint32(100), cfg.Device.CircuitIDBase)
	require.Equal(250*time.Millisecond, cfg.Device.ReconnectDelay.Duration)
	require.Equal(byte(1), cfg.Device.IdentityBytes()[31])
	require.Equal(byte(0xff), cfg.Keys.Material().Ticket[0])
	require.Equal("relay.example", cfg.Entry.ServerName)
	require.True(cfg.Entry.InsecureSkipVerify)
	require.Equal("DEBUG", cfg.Logging.Level)
	require.Equal("127.0.0.1:9100", cfg.Metrics.Address)
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad level", "[Entry]\nAddress = \"a:1\"\n[Logging]\nLevel = \"LOUD\"\n"},
		{"short key", "[Entry]\nAddress = \"a:1\"\n[Keys]\nMAC = \"0011\"\n"},
		{"bad identity", "[Entry]\nAddress = \"a:1\"\n[Device]\nIdentity = \"zz\"\n"},
		{"bad duration", "[Entry]\nAddress = \"a:1\"\n[Device]\nReconnectDelay = \"soon\"\n"},
		{"unknown key", "[Entry]\nAddress = \"a:1\"\nPort = 3\n"},
		{"missing address", "[Entry]\nServerName = \"x\"\n"},
		{"address without port", "[Entry]\nAddress = \"entry.example\"\n"},
		{"bad metrics address", "[Entry]\nAddress = \"a:1\"\n[Metrics]\nAddress = \"9100\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoadFile_PathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Entry]\nAddress = \"127.0.0.1:4433\"\n"), 0600))

	t.Setenv(EnvConfigPath, "")
	require.Equal(t, "fallback.toml", PathFromEnv("fallback.toml"))
	t.Setenv(EnvConfigPath, path)
	require.Equal(t, path, PathFromEnv("fallback.toml"))

	cfg, err := LoadFile(PathFromEnv("fallback.toml"))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Entry.ServerName)
}
