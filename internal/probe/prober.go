package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"relayping/internal/addrutil"
	"relayping/internal/execx"
	"relayping/internal/model"
)

// Prober measures latency to one relay. ok is false when the relay did not
// answer, timed out or produced unreadable output; such relays are dropped
// from the ranking rather than reported as errors.
type Prober interface {
	Probe(ctx context.Context, relay model.RelayEntry) (res model.ProbeResult, ok bool)
}

// Options are shared by every Prober implementation.
type Options struct {
	Count    int
	Interval float64 // seconds between echoes
	Timeout  time.Duration
	IPv6     bool
	Logger   hclog.Logger
}

// Validate checks the numeric ranges.
func (o Options) Validate() error {
	if o.Count < 1 {
		return fmt.Errorf("count must be >= 1, got %d", o.Count)
	}
	if o.Interval < MinInterval {
		return fmt.Errorf("interval must be >= %.1f seconds, got %g", MinInterval, o.Interval)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", o.Timeout)
	}
	return nil
}

// DefaultTimeout leaves room for every echo plus a grace period for the last
// reply and process start-up.
func DefaultTimeout(count int, interval float64) time.Duration {
	return time.Duration(float64(count)*interval*float64(time.Second)) + 5*time.Second
}

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout(o.Count, o.Interval)
	}
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}
	return o
}

// CommandProber shells out to the platform ping utility.
type CommandProber struct {
	runner   execx.Runner
	platform Platform
	grammar  Grammar
	opts     Options
}

// NewCommandProber fixes the grammar from the platform once; it is never
// re-detected from the output.
func NewCommandProber(runner execx.Runner, platform Platform, opts Options) (*CommandProber, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		runner = execx.NewOSRunner(0)
	}
	if opts.Timeout == 0 && platform.FixedInterval() {
		opts.Timeout = DefaultTimeout(opts.Count, FixedIntervalSeconds)
	}
	return &CommandProber{
		runner:   runner,
		platform: platform,
		grammar:  platform.Grammar(),
		opts:     opts.withDefaults(),
	}, nil
}

// Grammar returns the grammar used to read the ping summary.
func (p *CommandProber) Grammar() Grammar {
	return p.grammar
}

func (p *CommandProber) Probe(ctx context.Context, relay model.RelayEntry) (model.ProbeResult, bool) {
	log := p.opts.Logger.With("hostname", relay.Hostname)

	addr, ok := addrutil.ProbeAddr(relay, p.opts.IPv6)
	if !ok {
		log.Debug("no usable address", "ipv6", p.opts.IPv6)
		return model.ProbeResult{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	name, args := p.platform.Command(addr, p.opts.Count, p.opts.Interval, p.opts.IPv6)
	out, err := p.runner.Output(ctx, name, args...)
	if err != nil {
		log.Debug("ping failed", "addr", addr, "error", err)
		return model.ProbeResult{}, false
	}

	stats, ok := Parse(out, p.grammar)
	if !ok {
		log.Debug("unreadable ping output", "addr", addr, "grammar", p.grammar.String())
		return model.ProbeResult{}, false
	}
	return model.ProbeResult{Relay: relay, LatencyStats: stats}, true
}
