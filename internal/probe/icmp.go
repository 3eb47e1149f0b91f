package probe

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"relayping/internal/addrutil"
	"relayping/internal/model"
)

// echoer is the subset of *probing.Pinger used here.
type echoer interface {
	Run() error
	Stop()
	Statistics() *probing.Statistics
}

// ICMPProber sends echoes from the process itself instead of spawning ping.
// Unprivileged mode uses UDP ICMP sockets (Linux needs
// net.ipv4.ping_group_range); privileged mode needs raw socket rights.
type ICMPProber struct {
	opts       Options
	privileged bool
	newEchoer  func(addr string) (echoer, error)
}

func NewICMPProber(privileged bool, opts Options) (*ICMPProber, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	p := &ICMPProber{opts: opts.withDefaults(), privileged: privileged}
	p.newEchoer = p.pinger
	return p, nil
}

func (p *ICMPProber) pinger(addr string) (echoer, error) {
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		return nil, err
	}
	pinger.Count = p.opts.Count
	pinger.Interval = time.Duration(p.opts.Interval * float64(time.Second))
	pinger.Timeout = p.opts.Timeout
	pinger.SetPrivileged(p.privileged)
	return pinger, nil
}

func (p *ICMPProber) Probe(ctx context.Context, relay model.RelayEntry) (model.ProbeResult, bool) {
	log := p.opts.Logger.With("hostname", relay.Hostname)

	addr, ok := addrutil.ProbeAddr(relay, p.opts.IPv6)
	if !ok {
		log.Debug("no usable address", "ipv6", p.opts.IPv6)
		return model.ProbeResult{}, false
	}

	pinger, err := p.newEchoer(addr)
	if err != nil {
		log.Debug("icmp setup failed", "addr", addr, "error", err)
		return model.ProbeResult{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- pinger.Run() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		pinger.Stop()
		<-done
		log.Debug("icmp probe cancelled", "addr", addr, "error", ctx.Err())
		return model.ProbeResult{}, false
	}
	if err != nil {
		log.Debug("icmp probe failed", "addr", addr, "error", err)
		return model.ProbeResult{}, false
	}

	stats, ok := statsFromEchoes(pinger.Statistics())
	if !ok {
		log.Debug("no echo replies", "addr", addr)
		return model.ProbeResult{}, false
	}
	return model.ProbeResult{Relay: relay, LatencyStats: stats}, true
}

func statsFromEchoes(s *probing.Statistics) (model.LatencyStats, bool) {
	if s == nil || s.PacketsRecv == 0 {
		return model.LatencyStats{}, false
	}
	minMs := durationMs(s.MinRtt)
	maxMs := durationMs(s.MaxRtt)
	jitter := durationMs(s.StdDevRtt)
	return model.LatencyStats{
		MeanMs:   durationMs(s.AvgRtt),
		MinMs:    &minMs,
		MaxMs:    &maxMs,
		JitterMs: &jitter,
	}, true
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
