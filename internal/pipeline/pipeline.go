package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"relayping/internal/filter"
	"relayping/internal/model"
	"relayping/internal/probe"
	"relayping/internal/rank"
)

// DefaultWorkers is the number of relays probed at once.
const DefaultWorkers = 4

var (
	// ErrNoCandidates means the filter rejected every relay.
	ErrNoCandidates = errors.New("no servers matched the filter")
	// ErrNoResults means every candidate failed its probe.
	ErrNoResults = errors.New("no servers found")
)

// Options control a pipeline run.
type Options struct {
	Workers int
	// HostDelay is a pause each worker takes after probing a relay.
	HostDelay time.Duration
	TopN      int
	Logger    hclog.Logger
}

// Result is the outcome of a run. It stays valid when the run was cancelled:
// Ranked then holds whatever probes completed.
type Result struct {
	Candidates int
	Probed     int
	Reachable  int
	// All holds every reachable relay, fastest first; Ranked is its top N.
	All    rank.List
	Ranked rank.List
}

// Empty reports why nothing was ranked, or nil.
func (r Result) Empty() error {
	switch {
	case r.Candidates == 0:
		return ErrNoCandidates
	case len(r.Ranked) == 0:
		return ErrNoResults
	}
	return nil
}

// Run filters entries, probes the candidates with a bounded pool of workers
// and ranks the relays that answered. Per-relay failures never fail the run.
// The only error returned is the context's, alongside the partial Result.
func Run(ctx context.Context, entries []model.RelayEntry, criteria filter.Criteria, prober probe.Prober, opts Options) (Result, error) {
	candidates := filter.Filter(entries, criteria)
	return ProbeAll(ctx, candidates, prober, opts)
}

// ProbeAll probes every relay in candidates and ranks the answers.
func ProbeAll(ctx context.Context, candidates []model.RelayEntry, prober probe.Prober, opts Options) (Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	log := opts.Logger

	res := Result{Candidates: len(candidates)}
	if len(candidates) == 0 {
		res.All = rank.List{}
		res.Ranked = rank.List{}
		return res, nil
	}
	log.Debug("probing relays", "candidates", len(candidates), "workers", opts.Workers)

	var (
		collector rank.Collector
		probed    atomic.Int64
		g         errgroup.Group
	)
	sem := semaphore.NewWeighted(int64(opts.Workers))

	for _, relay := range candidates {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		relay := relay
		g.Go(func() error {
			defer sem.Release(1)
			if ctx.Err() != nil {
				return nil
			}

			r, ok := prober.Probe(ctx, relay)
			probed.Add(1)
			if ok {
				collector.Add(r)
				log.Info("probed relay", "hostname", relay.Hostname, "min/avg/max/jitter", r.Summary())
			} else {
				log.Debug("relay unreachable", "hostname", relay.Hostname)
			}

			if opts.HostDelay > 0 {
				t := time.NewTimer(opts.HostDelay)
				defer t.Stop()
				select {
				case <-ctx.Done():
				case <-t.C:
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Probed = int(probed.Load())
	res.Reachable = collector.Len()
	res.All = collector.Rank(0)
	res.Ranked = rank.Rank(res.All, opts.TopN)
	if err := ctx.Err(); err != nil {
		log.Warn("probing interrupted", "probed", res.Probed, "reachable", res.Reachable)
		return res, err
	}
	return res, nil
}
