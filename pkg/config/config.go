// Package config loads the per-stack and per-interface configuration
// named in spec §6 via github.com/spf13/viper, the same configuration
// library DataDog-datadog-agent builds its component config on.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Interface is the per-interface configuration block (spec §6:
// "Per-interface: IP address, netmask, gateway, MTU, flags").
type Interface struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Netmask string `mapstructure:"netmask"`
	Gateway string `mapstructure:"gateway"`
	MTU     int    `mapstructure:"mtu"`
	Up      bool   `mapstructure:"up"`
}

// Stack is the per-stack configuration block (spec §6: "Per-stack: DNS
// server list (up to 8), DNS timeout and retries, cache max entries and
// default TTL, TCP user_timeout, ephemeral port range").
type Stack struct {
	Interfaces []Interface `mapstructure:"interfaces"`

	DNSServers     []string      `mapstructure:"dns_servers"`
	DNSTimeout     time.Duration `mapstructure:"dns_timeout"`
	DNSRetries     int           `mapstructure:"dns_retries"`
	DNSCacheSize   int           `mapstructure:"dns_cache_size"`
	DNSDefaultTTL  time.Duration `mapstructure:"dns_default_ttl"`

	TCPUserTimeout time.Duration `mapstructure:"tcp_user_timeout"`

	// EphemeralPortLow/High bound ephemeral port allocation. Spec §9
	// notes the source mixes 32768+ (TCP) and 49152+ (UDP) ranges and
	// asks implementers to pick one; this module uses 49152-65535 for
	// both transports (see DESIGN.md "Open Questions").
	EphemeralPortLow  uint16 `mapstructure:"ephemeral_port_low"`
	EphemeralPortHigh uint16 `mapstructure:"ephemeral_port_high"`
}

// MaxDNSServers bounds the server list per spec §6 ("up to 8").
const MaxDNSServers = 8

// Defaults returns the spec-mandated default configuration: DNS timeout
// 5s, DNS retries 3 (spec §4.8), fragment/TIME_WAIT/MSL constants live
// alongside their owning packages rather than here since they are not
// named as stack-level configuration knobs in spec §6.
func Defaults() Stack {
	return Stack{
		DNSTimeout:        5 * time.Second,
		DNSRetries:        3,
		DNSCacheSize:      1024,
		DNSDefaultTTL:     5 * time.Minute,
		TCPUserTimeout:    2 * time.Minute,
		EphemeralPortLow:  49152,
		EphemeralPortHigh: 65535,
	}
}

// Load reads configuration from path (YAML, JSON, or TOML; format is
// inferred by viper from the extension) layered on top of Defaults().
// A missing file is not an error; Load then returns the defaults.
func Load(path string) (Stack, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "config: reading %s", path)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "config: decoding stack configuration")
	}
	if len(cfg.DNSServers) > MaxDNSServers {
		cfg.DNSServers = cfg.DNSServers[:MaxDNSServers]
	}
	return cfg, nil
}
