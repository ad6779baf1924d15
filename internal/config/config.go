// Package config loads the device configuration from TOML.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"ikedadada/go-tor4iot/internal/infrastructure/util"
)

const (
	defaultCircuitIDBase  = 17
	defaultReconnectDelay = 3 * time.Second
	defaultLogLevel       = "NOTICE"
	defaultALPN           = "tor4iot"

	// EnvConfigPath names the environment variable holding the config path.
	EnvConfigPath = "TOR4IOT_CONFIG"

	identitySize  = 32
	deviceKeySize = 16
)

// Duration is a time.Duration read from a TOML string such as "3s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Device is the identity and circuit numbering of the device.
type Device struct {
	// Identity is the hex encoded 32-byte device identity announced in INFO.
	Identity string

	// CircuitIDBase is the first circuit id handed out for tickets.
	CircuitIDBase uint32

	// ReconnectDelay is how long to wait after a finished exchange before
	// reconnecting to the entry.
	ReconnectDelay Duration
}

func (d *Device) validate() error {
	if d.CircuitIDBase == 0 {
		d.CircuitIDBase = defaultCircuitIDBase
	}
	if d.ReconnectDelay.Duration <= 0 {
		d.ReconnectDelay.Duration = defaultReconnectDelay
	}
	if d.Identity == "" {
		return nil
	}
	if _, err := util.DecodeHexField(d.Identity, identitySize, "Device.Identity"); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// IdentityBytes returns the decoded identity, zero if unset.
func (d *Device) IdentityBytes() [identitySize]byte {
	var id [identitySize]byte
	if b, err := util.DecodeHexField(d.Identity, identitySize, "Device.Identity"); err == nil {
		copy(id[:], b)
	}
	return id
}

// Keys holds the hex encoded symmetric keys shared with the delegation
// server. Unset keys default to the bytes 0x00..0x0f.
type Keys struct {
	Ticket  string
	MAC     string
	FastAck string
}

// KeyMaterial is the decoded form of Keys.
type KeyMaterial struct {
	Ticket  [deviceKeySize]byte
	MAC     [deviceKeySize]byte
	FastAck [deviceKeySize]byte
}

func defaultDeviceKey() string {
	var k [deviceKeySize]byte
	for i := range k {
		k[i] = byte(i)
	}
	return hex.EncodeToString(k[:])
}

func (k *Keys) validate() error {
	for _, f := range []struct {
		name string
		v    *string
	}{{"Ticket", &k.Ticket}, {"MAC", &k.MAC}, {"FastAck", &k.FastAck}} {
		if *f.v == "" {
			*f.v = defaultDeviceKey()
		}
		if _, err := util.DecodeHexField(*f.v, deviceKeySize, "Keys."+f.name); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// Material decodes the keys. It must be called on a validated config.
func (k *Keys) Material() KeyMaterial {
	var m KeyMaterial
	for _, f := range []struct {
		dst *[deviceKeySize]byte
		v   string
	}{{&m.Ticket, k.Ticket}, {&m.MAC, k.MAC}, {&m.FastAck, k.FastAck}} {
		b, _ := util.DecodeHexField(f.v, deviceKeySize, "")
		copy(f.dst[:], b)
	}
	return m
}

// Entry is the entry relay the device connects to.
type Entry struct {
	// Address is the host:port of the entry's datagram endpoint.
	Address string

	// ServerName overrides the TLS server name, defaulting to the host of
	// Address.
	ServerName string

	// ALPN is the application protocol negotiated with the entry.
	ALPN string

	// InsecureSkipVerify disables certificate verification. Testing only.
	InsecureSkipVerify bool
}

func (e *Entry) validate() error {
	host, err := util.ValidateEndpoint(e.Address, "Entry.Address")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if e.ServerName == "" {
		e.ServerName = host
	}
	if e.ALPN == "" {
		e.ALPN = defaultALPN
	}
	return nil
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl
	return nil
}

// Metrics configures the Prometheus endpoint. An empty Address disables it.
type Metrics struct {
	Address string
}

func (m *Metrics) validate() error {
	if m.Address == "" {
		return nil
	}
	if _, err := util.ValidateEndpoint(m.Address, "Metrics.Address"); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Config is the top level device configuration.
type Config struct {
	Device  *Device
	Keys    *Keys
	Entry   *Entry
	Logging *Logging
	Metrics *Metrics
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration sections.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Entry == nil {
		return errors.New("config: No Entry block was present")
	}
	if cfg.Device == nil {
		cfg.Device = &Device{}
	}
	if cfg.Keys == nil {
		cfg.Keys = &Keys{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}
	if err := cfg.Device.validate(); err != nil {
		return err
	}
	if err := cfg.Keys.validate(); err != nil {
		return err
	}
	if err := cfg.Entry.validate(); err != nil {
		return err
	}
	if err := cfg.Metrics.validate(); err != nil {
		return err
	}
	return cfg.Logging.validate()
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("No nil buffer as config file")
	}
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

// PathFromEnv returns the config path from EnvConfigPath, or def when unset.
func PathFromEnv(def string) string {
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return def
}
