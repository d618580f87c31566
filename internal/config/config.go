package config

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Interface     InterfaceConfig     `mapstructure:"interface" yaml:"interface"`
	Loop          LoopConfig          `mapstructure:"loop" yaml:"loop"`
	API           APIConfig           `mapstructure:"api" yaml:"api"`
	Metrics       MetricsConfig       `mapstructure:"metrics" yaml:"metrics"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`
}

type InterfaceConfig struct {
	Name    string   `mapstructure:"name" yaml:"name"`
	Driver  string   `mapstructure:"driver" yaml:"driver"`
	MTU     int      `mapstructure:"mtu" yaml:"mtu"`
	Address string   `mapstructure:"address" yaml:"address"`
	Netmask string   `mapstructure:"netmask" yaml:"netmask"`
	Routes  []string `mapstructure:"routes" yaml:"routes"`
}

type LoopConfig struct {
	StartTimeout time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	ReadBuffer   int           `mapstructure:"read_buffer" yaml:"read_buffer"`
}

type APIConfig struct {
	Address     string      `mapstructure:"address" yaml:"address"`
	Compression bool        `mapstructure:"compression" yaml:"compression"`
	Pprof       bool        `mapstructure:"pprof" yaml:"pprof"`
	HTTP3       HTTP3Config `mapstructure:"http3" yaml:"http3"`
}

type HTTP3Config struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Address  string `mapstructure:"address" yaml:"address"`
	CertFile string `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file"`
}

type MetricsConfig struct {
	Address string              `mapstructure:"address" yaml:"address"`
	Path    string              `mapstructure:"path" yaml:"path"`
	Export  MetricsExportConfig `mapstructure:"export" yaml:"export"`
}

type MetricsExportConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	RemoteWriteURL  string `mapstructure:"remote_write_url" yaml:"remote_write_url"`
	IntervalSeconds int    `mapstructure:"interval_seconds" yaml:"interval_seconds"`
	BearerToken     string `mapstructure:"bearer_token" yaml:"bearer_token"`
}

type ObservabilityConfig struct {
	TracesLimit           int    `mapstructure:"traces_limit" yaml:"traces_limit"`
	AlertsLimit           int    `mapstructure:"alerts_limit" yaml:"alerts_limit"`
	AlertIntervalSeconds  int    `mapstructure:"alert_interval_seconds" yaml:"alert_interval_seconds"`
	ErrorsThreshold       uint64 `mapstructure:"errors_threshold" yaml:"errors_threshold"`
	LoopFailuresThreshold uint64 `mapstructure:"loop_failures_threshold" yaml:"loop_failures_threshold"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

// LoadFromBytes parses a YAML document the same way Load parses a file.
func LoadFromBytes(data []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	// Zero is a meaningful value for booleans, so their defaults live in viper.
	v.SetDefault("api.compression", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Interface.Name == "" {
		cfg.Interface.Name = "vif0"
	}
	if cfg.Interface.Driver == "" {
		cfg.Interface.Driver = "memory"
	}
	if cfg.Interface.MTU == 0 {
		cfg.Interface.MTU = 1500
	}
	if cfg.Interface.Address == "" {
		cfg.Interface.Address = "10.0.0.1"
	}
	if cfg.Interface.Netmask == "" {
		cfg.Interface.Netmask = "255.255.255.0"
	}
	if cfg.Loop.StartTimeout == 0 {
		cfg.Loop.StartTimeout = 5 * time.Second
	}
	if cfg.Loop.StopTimeout == 0 {
		cfg.Loop.StopTimeout = 5 * time.Second
	}
	if cfg.Loop.ReadBuffer == 0 {
		cfg.Loop.ReadBuffer = 65535
	}
	if cfg.API.Address == "" {
		cfg.API.Address = ":8080"
	}
	if cfg.API.HTTP3.Address == "" {
		cfg.API.HTTP3.Address = ":8443"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Export.IntervalSeconds == 0 {
		cfg.Metrics.Export.IntervalSeconds = 10
	}
	if cfg.Observability.TracesLimit == 0 {
		cfg.Observability.TracesLimit = 500
	}
	if cfg.Observability.AlertsLimit == 0 {
		cfg.Observability.AlertsLimit = 200
	}
	if cfg.Observability.AlertIntervalSeconds == 0 {
		cfg.Observability.AlertIntervalSeconds = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

var (
	validDrivers = map[string]bool{"memory": true, "tun": true}
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

func Validate(cfg *Config) error {
	iface := cfg.Interface
	if iface.Name == "" {
		return fmt.Errorf("interface.name is required")
	}
	// IFNAMSIZ is 16 including the terminator.
	if len(iface.Name) > 15 || strings.ContainsAny(iface.Name, "/ \t\n") {
		return fmt.Errorf("interface.name %q is not a valid interface name", iface.Name)
	}
	if !validDrivers[iface.Driver] {
		return fmt.Errorf("interface.driver %q is not supported", iface.Driver)
	}
	if iface.MTU < 68 || iface.MTU > 65535 {
		return fmt.Errorf("interface.mtu %d out of range", iface.MTU)
	}
	if ip := net.ParseIP(iface.Address); ip == nil || ip.To4() == nil {
		return fmt.Errorf("interface.address %q is not an IPv4 address", iface.Address)
	}
	if mask := net.ParseIP(iface.Netmask); mask == nil || mask.To4() == nil {
		return fmt.Errorf("interface.netmask %q is not a dotted IPv4 mask", iface.Netmask)
	}
	for i, route := range iface.Routes {
		if _, _, err := net.ParseCIDR(route); err != nil {
			return fmt.Errorf("interface.routes[%d]: %w", i, err)
		}
	}
	if cfg.Loop.StartTimeout < 0 || cfg.Loop.StopTimeout < 0 {
		return fmt.Errorf("loop timeouts must be positive")
	}
	if cfg.Loop.ReadBuffer < iface.MTU {
		return fmt.Errorf("loop.read_buffer %d is smaller than interface.mtu %d", cfg.Loop.ReadBuffer, iface.MTU)
	}
	if cfg.API.HTTP3.Enabled && (cfg.API.HTTP3.CertFile == "" || cfg.API.HTTP3.KeyFile == "") {
		return fmt.Errorf("api.http3 requires cert_file and key_file")
	}
	if cfg.Metrics.Export.Enabled {
		if cfg.Metrics.Export.RemoteWriteURL == "" {
			return fmt.Errorf("metrics.export.remote_write_url is required when export is enabled")
		}
		if _, err := ResolveSecret(cfg.Metrics.Export.BearerToken); err != nil {
			return fmt.Errorf("metrics.export.bearer_token: %w", err)
		}
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level %q is not supported", cfg.Logging.Level)
	}
	return nil
}
