package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relayping/internal/filter"
	"relayping/internal/model"
	"relayping/internal/probe"
)

type fakeProber struct {
	mu     sync.Mutex
	calls  []string
	means  map[string]float64 // hostname -> mean; missing means unreachable
	onCall func(hostname string)
}

func (f *fakeProber) Probe(ctx context.Context, relay model.RelayEntry) (model.ProbeResult, bool) {
	f.mu.Lock()
	f.calls = append(f.calls, relay.Hostname)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(relay.Hostname)
	}
	mean, ok := f.means[relay.Hostname]
	if !ok {
		return model.ProbeResult{}, false
	}
	return model.ProbeResult{Relay: relay, LatencyStats: model.LatencyStats{MeanMs: mean}}, true
}

func (f *fakeProber) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var _ probe.Prober = (*fakeProber)(nil)

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	catalog := []model.RelayEntry{
		{Hostname: "se-got-wg-001", CountryCode: "se", Active: true},
		{Hostname: "se-sto-wg-001", CountryCode: "se", Active: true},
		{Hostname: "de-fra-wg-001", CountryCode: "de", Active: true},
	}
	prober := &fakeProber{means: map[string]float64{
		"se-sto-wg-001": 18,
		"de-fra-wg-001": 3,
	}}

	res, err := Run(context.Background(), catalog, filter.Criteria{Country: "se"}, prober, Options{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 2, res.Probed)
	assert.Equal(t, 1, res.Reachable)
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, "se-sto-wg-001", res.Ranked[0].Relay.Hostname)
	assert.Equal(t, 18.0, res.Ranked[0].MeanMs)
	assert.NoError(t, res.Empty())
	assert.ElementsMatch(t, []string{"se-got-wg-001", "se-sto-wg-001"}, prober.called())
}

func TestRun_NoCandidates(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{}
	res, err := Run(context.Background(), []model.RelayEntry{{Hostname: "a", CountryCode: "se", Active: true}},
		filter.Criteria{Country: "us"}, prober, Options{})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Empty(), ErrNoCandidates)
	assert.NotNil(t, res.Ranked)
	assert.Empty(t, prober.called())
}

func TestRun_AllUnreachable(t *testing.T) {
	t.Parallel()

	catalog := []model.RelayEntry{{Hostname: "a", Active: true}, {Hostname: "b", Active: true}}
	res, err := Run(context.Background(), catalog, filter.Criteria{}, &fakeProber{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Probed)
	assert.ErrorIs(t, res.Empty(), ErrNoResults)
}

func TestProbeAll_TopN(t *testing.T) {
	t.Parallel()

	candidates := []model.RelayEntry{{Hostname: "a"}, {Hostname: "b"}, {Hostname: "c"}}
	prober := &fakeProber{means: map[string]float64{"a": 30, "b": 10, "c": 20}}
	res, err := ProbeAll(context.Background(), candidates, prober, Options{Workers: 3, TopN: 2})
	require.NoError(t, err)
	require.Len(t, res.Ranked, 2)
	assert.Equal(t, "b", res.Ranked[0].Relay.Hostname)
	assert.Equal(t, "c", res.Ranked[1].Relay.Hostname)
	assert.Equal(t, 3, res.Reachable)
	assert.Len(t, res.All, 3)
}

func TestProbeAll_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int64
	prober := &fakeProber{
		means: map[string]float64{},
		onCall: func(string) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
		},
	}
	candidates := make([]model.RelayEntry, 12)
	for i := range candidates {
		candidates[i] = model.RelayEntry{Hostname: string(rune('a' + i))}
	}

	res, err := ProbeAll(context.Background(), candidates, prober, Options{Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, 12, res.Probed)
	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestProbeAll_CancelKeepsCompletedResults(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prober := &fakeProber{
		means: map[string]float64{"a": 10, "c": 5},
		onCall: func(hostname string) {
			if hostname == "b" {
				cancel()
			}
		},
	}
	candidates := []model.RelayEntry{{Hostname: "a"}, {Hostname: "b"}, {Hostname: "c"}}

	res, err := ProbeAll(ctx, candidates, prober, Options{Workers: 1})
	require.True(t, errors.Is(err, context.Canceled), "err=%v", err)
	assert.Equal(t, []string{"a", "b"}, prober.called())
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, "a", res.Ranked[0].Relay.Hostname)
}
