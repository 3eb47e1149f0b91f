package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"relayping/internal/catalog"
	"relayping/internal/config"
	"relayping/internal/execx"
	"relayping/internal/metrics"
	"relayping/internal/pipeline"
	"relayping/internal/present"
	"relayping/internal/probe"
	"relayping/internal/vantage"
)

// cliFlags mirrors the config fields that can be set on the command line.
// Only flags the operator actually passed override the config.
type cliFlags struct {
	configPath string
	saveConfig string

	serverType string
	baseURL    string

	country         string
	city            string
	minSpeed        int
	runMode         string
	provider        string
	ownership       string
	includeInactive bool

	listCountries bool
	listCities    bool
	listProviders bool

	backend    string
	platform   string
	count      int
	interval   float64
	timeout    time.Duration
	workers    int
	hostDelay  time.Duration
	ipv6       bool
	privileged bool

	output       string
	jsonOut      bool
	top          int
	domainSuffix string
	metricsFile  string

	stun     string
	logLevel string
}

// NewCommand returns the root command. Output goes to stdout, logs and
// warnings to stderr.
func NewCommand(stdout, stderr io.Writer) *cobra.Command {
	var f cliFlags

	cmd := &cobra.Command{
		Use:   "relayping",
		Short: "rank relays by measured latency",
		Long: `relayping fetches the relay catalog, keeps the relays matching the
given filters, pings each of them and prints the fastest ones.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Flags(), &f)
			if err != nil {
				return err
			}
			listing, err := catalog.SelectListing(f.listCountries, f.listCities, f.listProviders)
			if err != nil {
				return err
			}
			if f.saveConfig != "" {
				if err := saveResolved(f.saveConfig, cfg); err != nil {
					return err
				}
			}
			return run(cmd.Context(), cfg, listing, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "f", "", "path to YAML config")
	fs.StringVar(&f.saveConfig, "save-config", "", "write the resolved config to this path before running")

	fs.StringVarP(&f.serverType, "type", "t", config.DefaultServerType, "server type: "+strings.Join(catalog.ServerTypes, ", "))
	fs.StringVar(&f.baseURL, "catalog-url", catalog.DefaultBaseURL, "relay catalog base URL")

	fs.StringVarP(&f.country, "country", "c", "", "only relays in this country code")
	fs.StringVar(&f.city, "city", "", "only relays in this city code")
	fs.IntVarP(&f.minSpeed, "min-speed", "s", 0, "minimum port speed in Gbps")
	fs.StringVar(&f.runMode, "run-mode", "any", "any, ram or disk")
	fs.StringVar(&f.provider, "provider", "", "only relays from this hosting provider")
	fs.StringVar(&f.ownership, "ownership", "any", "any, owned or rented")
	fs.BoolVar(&f.includeInactive, "include-inactive", false, "also probe inactive relays")

	fs.BoolVar(&f.listCountries, "list-countries", false, "list countries in the catalog and exit")
	fs.BoolVar(&f.listCities, "list-cities", false, "list cities in the catalog and exit")
	fs.BoolVar(&f.listProviders, "list-providers", false, "list providers in the catalog and exit")

	fs.StringVar(&f.backend, "backend", config.DefaultBackend, "probe backend: exec (system ping) or icmp (in-process)")
	fs.StringVar(&f.platform, "platform", "", "ping dialect: linux, darwin, freebsd or windows (default: host OS)")
	fs.IntVarP(&f.count, "count", "n", config.DefaultCount, "echo requests per relay")
	fs.Float64VarP(&f.interval, "interval", "i", config.DefaultInterval, "seconds between echo requests")
	fs.DurationVar(&f.timeout, "timeout", 0, "per-relay probe timeout (default: count*interval + 5s)")
	fs.IntVarP(&f.workers, "workers", "w", config.DefaultWorkers, "relays probed concurrently")
	fs.DurationVar(&f.hostDelay, "host-delay", 0, "pause after each relay")
	fs.BoolVarP(&f.ipv6, "ipv6", "6", false, "probe the IPv6 address")
	fs.BoolVar(&f.privileged, "privileged", false, "use raw sockets with the icmp backend")

	fs.StringVarP(&f.output, "output", "o", config.DefaultFormat, "output format: table, json or csv")
	fs.BoolVar(&f.jsonOut, "json", false, "shorthand for --output json")
	fs.IntVar(&f.top, "top", config.DefaultTop, "number of relays to print, 0 for all")
	fs.StringVar(&f.domainSuffix, "domain-suffix", config.DefaultDomainSuffix, "domain appended to hostnames")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus textfile metrics to this path")

	fs.StringVar(&f.stun, "stun", "", "comma-separated STUN servers used to record the public address")
	fs.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "trace, debug, info, warn or error")

	cmd.MarkFlagsMutuallyExclusive("output", "json")

	return cmd
}

// resolveConfig layers defaults, file, environment and flags, then validates.
func resolveConfig(fs *pflag.FlagSet, f *cliFlags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return config.Config{}, err
	}
	applyFlags(fs, f, &cfg)
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, f *cliFlags, cfg *config.Config) {
	set := fs.Changed

	if set("type") {
		cfg.Catalog.ServerType = f.serverType
	}
	if set("catalog-url") {
		cfg.Catalog.BaseURL = f.baseURL
	}

	if set("country") {
		cfg.Filter.Country = f.country
	}
	if set("city") {
		cfg.Filter.City = f.city
	}
	if set("min-speed") {
		cfg.Filter.MinPortSpeed = f.minSpeed
	}
	if set("run-mode") {
		cfg.Filter.RunMode = f.runMode
	}
	if set("provider") {
		cfg.Filter.Provider = f.provider
	}
	if set("ownership") {
		cfg.Filter.Ownership = f.ownership
	}
	if set("include-inactive") {
		cfg.Filter.IncludeInactive = f.includeInactive
	}

	if set("backend") {
		cfg.Probe.Backend = f.backend
	}
	if set("platform") {
		cfg.Probe.Platform = f.platform
	}
	if set("count") {
		cfg.Probe.Count = f.count
	}
	if set("interval") {
		cfg.Probe.Interval = f.interval
	}
	if set("timeout") {
		cfg.Probe.Timeout = f.timeout
	}
	if set("workers") {
		cfg.Probe.Workers = f.workers
	}
	if set("host-delay") {
		cfg.Probe.HostDelay = f.hostDelay
	}
	if set("ipv6") {
		cfg.Probe.IPv6 = f.ipv6
	}
	if set("privileged") {
		cfg.Probe.Privileged = f.privileged
	}

	if set("output") {
		cfg.Output.Format = f.output
	}
	if set("json") && f.jsonOut {
		cfg.Output.Format = string(present.FormatJSON)
	}
	if set("top") {
		cfg.Output.Top = f.top
	}
	if set("domain-suffix") {
		cfg.Output.DomainSuffix = f.domainSuffix
	}
	if set("metrics-file") {
		cfg.Output.MetricsFile = f.metricsFile
	}

	if set("stun") {
		cfg.Vantage.STUNServers = splitList(f.stun)
	}
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
}

// errTopNotSaveable is returned for --top 0 with --save-config: a zero top in
// the file means the default, so the saved file would print fewer relays.
var errTopNotSaveable = errors.New("--top 0 cannot be saved: top 0 in a config file means the default")

func saveResolved(path string, cfg config.Config) error {
	if cfg.Output.Top == 0 {
		return errTopNotSaveable
	}
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func newLogger(level string, w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "relayping",
		Level:  hclog.LevelFromString(level),
		Output: w,
	})
}

// newProber is replaced in tests so runs never spawn ping.
var newProber = func(cfg config.Config, log hclog.Logger) (probe.Prober, error) {
	opts := cfg.ProbeOptions()
	opts.Logger = log

	if cfg.Probe.Backend == config.BackendICMP {
		return probe.NewICMPProber(cfg.Probe.Privileged, opts)
	}
	platform, err := cfg.Platform()
	if err != nil {
		return nil, err
	}
	return probe.NewCommandProber(execx.NewOSRunner(0), platform, opts)
}

func run(ctx context.Context, cfg config.Config, listing catalog.Listing, stdout, stderr io.Writer) error {
	log := newLogger(cfg.LogLevel, stderr)

	format, err := present.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	out := present.New(stdout, format)
	out.DomainSuffix = cfg.Output.DomainSuffix

	client := catalog.NewClient(cfg.Catalog.BaseURL, catalog.Options{
		Timeout:  cfg.Catalog.Timeout,
		RetryMax: cfg.Catalog.RetryMax,
		Logger:   log,
	})
	entries, err := client.Fetch(ctx, cfg.Catalog.ServerType)
	if err != nil {
		return err
	}
	log.Debug("catalog fetched", "type", cfg.Catalog.ServerType, "relays", len(entries))

	if listing != catalog.ListNone {
		log.Debug("listing catalog", "listing", listing.String())
	}
	switch listing {
	case catalog.ListCountries:
		return out.Locations(catalog.Countries(entries))
	case catalog.ListCities:
		return out.Locations(catalog.Cities(entries))
	case catalog.ListProviders:
		return out.Providers(catalog.Providers(entries))
	}

	if len(cfg.Vantage.STUNServers) > 0 {
		point, err := vantage.Discover(ctx, cfg.Vantage.STUNServers, cfg.Vantage.Timeout)
		if err != nil {
			log.Warn("vantage point lookup failed", "error", err)
		} else {
			log.Info("measuring from", "public_ip", point.IP(), "nat", point.NATType)
		}
	}

	if platform, err := cfg.Platform(); err == nil && platform.FixedInterval() &&
		cfg.Probe.Backend == config.BackendExec && cfg.Probe.Interval != config.DefaultInterval {
		log.Warn("ping on this platform uses a fixed interval; ignoring interval", "platform", platform)
	}

	prober, err := newProber(cfg, log)
	if err != nil {
		return err
	}

	res, runErr := pipeline.Run(ctx, entries, cfg.Criteria(), prober, pipeline.Options{
		Workers:   cfg.Probe.Workers,
		HostDelay: cfg.Probe.HostDelay,
		TopN:      cfg.Output.Top,
		Logger:    log,
	})
	summary := metrics.Summarize(res.Candidates, res.Probed, res.All)
	log.Info("run complete",
		"candidates", summary.Candidates,
		"probed", summary.Probed,
		"reachable", summary.Reachable,
		"best", summary.BestHost,
		"loss_pct", fmt.Sprintf("%.1f", summary.LossPct()),
		"p95_ms", fmt.Sprintf("%.3f", summary.P95Ms),
		"avg_jitter_ms", fmt.Sprintf("%.3f", summary.AvgJitter),
	)
	if best, ok := res.Ranked.Best(); ok {
		log.Debug("fastest relay", "hostname", best.Relay.FQDN(cfg.Output.DomainSuffix), "mean_ms", best.MeanMs)
	}

	if cfg.Output.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Output.MetricsFile, summary, res.All); err != nil {
			log.Error("write metrics textfile", "path", cfg.Output.MetricsFile, "error", err)
		}
	}

	if err := res.Empty(); err != nil {
		if runErr != nil {
			return runErr
		}
		if format == present.FormatJSON {
			// Scripts still get a parseable document.
			_ = out.Ranking(res.Ranked)
		}
		return err
	}

	if format == present.FormatTable {
		heading := color.New(color.Bold)
		heading.Fprintf(stdout, "Fastest %d of %d reachable relays\n", len(res.Ranked), res.Reachable)
	}
	if err := out.Ranking(res.Ranked); err != nil {
		return err
	}
	if runErr != nil {
		fmt.Fprintln(stderr, color.YellowString("Interrupted: ranking covers %d of %d relays", res.Probed, res.Candidates))
	}
	return runErr
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
