package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"relayping/internal/catalog"
	"relayping/internal/filter"
	"relayping/internal/present"
	"relayping/internal/probe"
)

// EnvPrefix prefixes every environment override, e.g. RELAYPING_PROBE_COUNT.
const EnvPrefix = "RELAYPING"

const (
	DefaultServerType     = catalog.TypeAll
	DefaultCatalogTimeout = 10 * time.Second
	DefaultRetryMax       = 3
	DefaultBackend        = BackendExec
	DefaultCount          = 5
	DefaultInterval       = probe.MinInterval
	DefaultWorkers        = 4
	DefaultTop            = 5
	DefaultFormat         = "table"
	DefaultDomainSuffix   = "mullvad.net"
	DefaultSTUNTimeout    = 3 * time.Second
	DefaultLogLevel       = "info"
)

// Probe backends.
const (
	BackendExec = "exec"
	BackendICMP = "icmp"
)

// Config holds every setting of a run. Flags override env, env overrides the
// file, the file overrides defaults.
//
// Environment keys are derived from field names under EnvPrefix, e.g.
// RELAYPING_FILTER_MIN_PORT_SPEED. There are no unprefixed aliases.
type Config struct {
	Catalog  CatalogConfig `yaml:"catalog"`
	Filter   FilterConfig  `yaml:"filter"`
	Probe    ProbeConfig   `yaml:"probe"`
	Output   OutputConfig  `yaml:"output"`
	Vantage  VantageConfig `yaml:"vantage"`
	LogLevel string        `yaml:"log_level" split_words:"true"`
}

// CatalogConfig selects where relays are fetched from.
type CatalogConfig struct {
	BaseURL    string        `yaml:"base_url" split_words:"true"`
	ServerType string        `yaml:"server_type" split_words:"true"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryMax   int           `yaml:"retry_max" split_words:"true"`
}

// FilterConfig narrows the catalog before probing. Empty fields match
// everything.
type FilterConfig struct {
	Country         string `yaml:"country"`
	City            string `yaml:"city"`
	MinPortSpeed    int    `yaml:"min_port_speed" split_words:"true"`
	RunMode         string `yaml:"run_mode" split_words:"true"`
	Provider        string `yaml:"provider"`
	Ownership       string `yaml:"ownership"`
	IncludeInactive bool   `yaml:"include_inactive" split_words:"true"`
}

// ProbeConfig controls how each relay is measured.
type ProbeConfig struct {
	Backend  string  `yaml:"backend"`
	Platform string  `yaml:"platform"` // empty means the host OS
	Count    int     `yaml:"count"`
	Interval float64 `yaml:"interval"` // seconds
	// Timeout of zero derives one from count and interval.
	Timeout   time.Duration `yaml:"timeout"`
	Workers   int           `yaml:"workers"`
	HostDelay time.Duration `yaml:"host_delay" split_words:"true"`
	// IPv6 is not split so its key stays RELAYPING_PROBE_IPV6.
	IPv6       bool `yaml:"ipv6"`
	Privileged bool `yaml:"privileged"`
}

type OutputConfig struct {
	Format       string `yaml:"format"`
	Top          int    `yaml:"top"` // 0 from a flag or env prints every relay
	DomainSuffix string `yaml:"domain_suffix" split_words:"true"`
	MetricsFile  string `yaml:"metrics_file" split_words:"true"`
}

// VantageConfig lists STUN servers used to record where measurements were
// taken from. No servers disables the lookup.
type VantageConfig struct {
	STUNServers []string      `yaml:"stun_servers" split_words:"true"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Load reads and parses a YAML config file. An empty path yields defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// ApplyEnv overrides cfg with RELAYPING_* environment variables. Unset
// variables leave the current value alone.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Catalog.BaseURL == "" {
		cfg.Catalog.BaseURL = catalog.DefaultBaseURL
	}
	if cfg.Catalog.ServerType == "" {
		cfg.Catalog.ServerType = DefaultServerType
	}
	if cfg.Catalog.Timeout == 0 {
		cfg.Catalog.Timeout = DefaultCatalogTimeout
	}
	if cfg.Catalog.RetryMax == 0 {
		cfg.Catalog.RetryMax = DefaultRetryMax
	}

	if cfg.Filter.RunMode == "" {
		cfg.Filter.RunMode = string(filter.RunModeAny)
	}
	if cfg.Filter.Ownership == "" {
		cfg.Filter.Ownership = string(filter.OwnershipAny)
	}

	if cfg.Probe.Backend == "" {
		cfg.Probe.Backend = DefaultBackend
	}
	if cfg.Probe.Count == 0 {
		cfg.Probe.Count = DefaultCount
	}
	if cfg.Probe.Interval == 0 {
		cfg.Probe.Interval = DefaultInterval
	}
	if cfg.Probe.Workers == 0 {
		cfg.Probe.Workers = DefaultWorkers
	}

	if cfg.Output.Format == "" {
		cfg.Output.Format = DefaultFormat
	}
	if cfg.Output.Top == 0 {
		cfg.Output.Top = DefaultTop
	}
	if cfg.Output.DomainSuffix == "" {
		cfg.Output.DomainSuffix = DefaultDomainSuffix
	}

	if cfg.Vantage.Timeout == 0 {
		cfg.Vantage.Timeout = DefaultSTUNTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

// Validate reports every invalid value at once. It runs before any network
// activity.
func Validate(cfg Config) error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if cfg.Catalog.BaseURL == "" {
		add("catalog.base_url is required")
	}
	if !catalog.ValidServerType(cfg.Catalog.ServerType) {
		add("catalog.server_type %q is not one of %v", cfg.Catalog.ServerType, catalog.ServerTypes)
	}
	if cfg.Catalog.Timeout < 0 {
		add("catalog.timeout must not be negative")
	}
	if cfg.Catalog.RetryMax < 0 {
		add("catalog.retry_max must not be negative")
	}

	if cfg.Filter.MinPortSpeed < 0 {
		add("filter.min_port_speed must not be negative")
	}
	if _, err := filter.ParseRunMode(cfg.Filter.RunMode); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := filter.ParseOwnership(cfg.Filter.Ownership); err != nil {
		result = multierror.Append(result, err)
	}

	switch cfg.Probe.Backend {
	case BackendExec, BackendICMP:
	default:
		add("probe.backend %q is not one of exec, icmp", cfg.Probe.Backend)
	}
	if cfg.Probe.Platform != "" {
		if _, err := probe.ParsePlatform(cfg.Probe.Platform); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := cfg.ProbeOptions().Validate(); err != nil {
		result = multierror.Append(result, fmt.Errorf("probe: %w", err))
	}
	if cfg.Probe.Workers < 1 {
		add("probe.workers must be >= 1, got %d", cfg.Probe.Workers)
	}
	if cfg.Probe.HostDelay < 0 {
		add("probe.host_delay must not be negative")
	}

	if _, err := present.ParseFormat(cfg.Output.Format); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.Output.Top < 0 {
		add("output.top must not be negative, got %d", cfg.Output.Top)
	}

	if cfg.Vantage.Timeout < 0 {
		add("vantage.timeout must not be negative")
	}
	if hclog.LevelFromString(cfg.LogLevel) == hclog.NoLevel {
		add("log_level %q is not a valid level", cfg.LogLevel)
	}

	return result.ErrorOrNil()
}

// Criteria converts the filter section. Call after Validate.
func (c Config) Criteria() filter.Criteria {
	mode, _ := filter.ParseRunMode(c.Filter.RunMode)
	owner, _ := filter.ParseOwnership(c.Filter.Ownership)
	return filter.Criteria{
		Country:         c.Filter.Country,
		City:            c.Filter.City,
		MinPortSpeed:    c.Filter.MinPortSpeed,
		RunMode:         mode,
		Provider:        c.Filter.Provider,
		Ownership:       owner,
		IncludeInactive: c.Filter.IncludeInactive,
	}
}

// ProbeOptions converts the probe section. The logger is left for the caller.
func (c Config) ProbeOptions() probe.Options {
	return probe.Options{
		Count:    c.Probe.Count,
		Interval: c.Probe.Interval,
		Timeout:  c.Probe.Timeout,
		IPv6:     c.Probe.IPv6,
	}
}

// Platform resolves the configured platform, falling back to the host OS.
func (c Config) Platform() (probe.Platform, error) {
	if c.Probe.Platform == "" {
		return probe.HostPlatform(), nil
	}
	return probe.ParsePlatform(c.Probe.Platform)
}
