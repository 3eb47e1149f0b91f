package probe

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relayping/internal/execx"
	"relayping/internal/model"
)

type scriptedRunner struct {
	mu   sync.Mutex
	cmds []string
	out  string
	err  error
	// block makes Output wait for the context, like a hung ping.
	block bool
}

func (r *scriptedRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	r.mu.Lock()
	r.cmds = append(r.cmds, name+" "+strings.Join(args, " "))
	r.mu.Unlock()
	if r.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.out, r.err
}

var _ execx.Runner = (*scriptedRunner)(nil)

var relay = model.RelayEntry{
	Hostname: "se-got-wg-001",
	IPv4Addr: "185.213.154.68",
	IPv6Addr: "2a03:1b20:5:f011::a01f",
	Provider: "31173",
}

func TestCommandProber_LinuxSuccess(t *testing.T) {
	t.Parallel()

	rr := &scriptedRunner{out: linuxOutput}
	p, err := NewCommandProber(rr, PlatformLinux, Options{Count: 3, Interval: 0.2})
	require.NoError(t, err)
	assert.Equal(t, GrammarQuad, p.Grammar())

	res, ok := p.Probe(context.Background(), relay)
	require.True(t, ok)
	assert.Equal(t, relay, res.Relay)
	assert.Equal(t, 15.266, res.MeanMs)
	require.Equal(t, []string{"ping -n -c 3 -i 0.2 185.213.154.68"}, rr.cmds)
}

func TestCommandProber_WindowsFixedInterval(t *testing.T) {
	t.Parallel()

	rr := &scriptedRunner{out: windowsOutput}
	p, err := NewCommandProber(rr, PlatformWindows, Options{Count: 2, Interval: 1})
	require.NoError(t, err)
	assert.Equal(t, GrammarSingle, p.Grammar())

	res, ok := p.Probe(context.Background(), relay)
	require.True(t, ok)
	assert.Equal(t, 42.0, res.MeanMs)
	assert.Nil(t, res.JitterMs)
	require.Equal(t, []string{"ping -n 2 185.213.154.68"}, rr.cmds)
}

type deadlineRunner struct {
	budget time.Duration
}

func (r *deadlineRunner) Output(ctx context.Context, _ string, _ ...string) (string, error) {
	if dl, ok := ctx.Deadline(); ok {
		r.budget = time.Until(dl)
	}
	return windowsOutput, nil
}

func TestCommandProber_WindowsTimeoutCoversFixedInterval(t *testing.T) {
	t.Parallel()

	rr := &deadlineRunner{}
	p, err := NewCommandProber(rr, PlatformWindows, Options{Count: 10, Interval: 0.2})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout(10, FixedIntervalSeconds), p.opts.Timeout)

	_, ok := p.Probe(context.Background(), relay)
	require.True(t, ok)
	// Ten echoes one second apart need at least nine seconds.
	assert.Greater(t, rr.budget, 9*time.Second)
}

func TestCommandProber_ExplicitTimeoutKept(t *testing.T) {
	t.Parallel()

	p, err := NewCommandProber(&deadlineRunner{}, PlatformWindows, Options{Count: 10, Interval: 0.2, Timeout: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, p.opts.Timeout)

	p, err = NewCommandProber(&deadlineRunner{}, PlatformLinux, Options{Count: 10, Interval: 0.2})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout(10, 0.2), p.opts.Timeout)
}

func TestCommandProber_IPv6(t *testing.T) {
	t.Parallel()

	rr := &scriptedRunner{out: darwinOutput}
	p, err := NewCommandProber(rr, PlatformDarwin, Options{Count: 1, Interval: 0.5, IPv6: true})
	require.NoError(t, err)

	_, ok := p.Probe(context.Background(), relay)
	require.True(t, ok)
	require.Equal(t, []string{"ping6 -n -c 1 -i 0.5 2a03:1b20:5:f011::a01f"}, rr.cmds)
}

func TestCommandProber_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		runner *scriptedRunner
		relay  model.RelayEntry
	}{
		{"non-zero exit", &scriptedRunner{out: linuxOutput, err: errors.New("exit status 1")}, relay},
		{"unreadable output", &scriptedRunner{out: "ping: unknown host"}, relay},
		{"grammar mismatch", &scriptedRunner{out: windowsOutput}, relay},
		{"no address", &scriptedRunner{out: linuxOutput}, model.RelayEntry{Hostname: "x"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := NewCommandProber(tt.runner, PlatformLinux, Options{Count: 1, Interval: 0.2})
			require.NoError(t, err)
			_, ok := p.Probe(context.Background(), tt.relay)
			assert.False(t, ok)
		})
	}
}

func TestCommandProber_TimeoutIsFailure(t *testing.T) {
	t.Parallel()

	rr := &scriptedRunner{block: true}
	p, err := NewCommandProber(rr, PlatformLinux, Options{Count: 1, Interval: 0.2, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, ok := p.Probe(context.Background(), relay)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestOptionsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Options{Count: 1, Interval: 0.2}.Validate())
	require.Error(t, Options{Count: 0, Interval: 0.2}.Validate())
	require.Error(t, Options{Count: 1, Interval: 0.1}.Validate())
	require.Error(t, Options{Count: 1, Interval: 0.2, Timeout: -time.Second}.Validate())

	_, err := NewCommandProber(&scriptedRunner{}, PlatformLinux, Options{Count: 1, Interval: 0.05})
	require.Error(t, err)
}

func TestDefaultTimeout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10*time.Second, DefaultTimeout(5, 1))
}

func TestPlatform(t *testing.T) {
	t.Parallel()

	p, err := ParsePlatform("Windows")
	require.NoError(t, err)
	assert.True(t, p.FixedInterval())
	assert.Equal(t, GrammarSingle, p.Grammar())

	p, err = ParsePlatform("freebsd")
	require.NoError(t, err)
	assert.Equal(t, GrammarQuad, p.Grammar())

	_, err = ParsePlatform("plan9")
	require.Error(t, err)
}

type fakeEchoer struct {
	stats *probing.Statistics
	err   error
	block chan struct{}
	once  sync.Once
}

func (f *fakeEchoer) Run() error {
	if f.block != nil {
		<-f.block
	}
	return f.err
}

func (f *fakeEchoer) Stop() {
	if f.block != nil {
		f.once.Do(func() { close(f.block) })
	}
}

func (f *fakeEchoer) Statistics() *probing.Statistics { return f.stats }

func newTestICMPProber(t *testing.T, e *fakeEchoer, opts Options) *ICMPProber {
	t.Helper()
	p, err := NewICMPProber(false, opts)
	require.NoError(t, err)
	p.newEchoer = func(string) (echoer, error) { return e, nil }
	return p
}

func TestICMPProber_Success(t *testing.T) {
	t.Parallel()

	e := &fakeEchoer{stats: &probing.Statistics{
		PacketsRecv: 3,
		MinRtt:      10 * time.Millisecond,
		AvgRtt:      12500 * time.Microsecond,
		MaxRtt:      15 * time.Millisecond,
		StdDevRtt:   2 * time.Millisecond,
	}}
	res, ok := newTestICMPProber(t, e, Options{Count: 3, Interval: 0.2}).Probe(context.Background(), relay)
	require.True(t, ok)
	assert.Equal(t, 12.5, res.MeanMs)
	assert.Equal(t, 10.0, *res.MinMs)
	assert.Equal(t, 15.0, *res.MaxMs)
	assert.Equal(t, 2.0, *res.JitterMs)
}

func TestICMPProber_NoReplies(t *testing.T) {
	t.Parallel()

	e := &fakeEchoer{stats: &probing.Statistics{PacketsSent: 3}}
	_, ok := newTestICMPProber(t, e, Options{Count: 3, Interval: 0.2}).Probe(context.Background(), relay)
	assert.False(t, ok)
}

func TestICMPProber_Timeout(t *testing.T) {
	t.Parallel()

	e := &fakeEchoer{block: make(chan struct{})}
	p := newTestICMPProber(t, e, Options{Count: 1, Interval: 0.2, Timeout: 50 * time.Millisecond})
	_, ok := p.Probe(context.Background(), relay)
	assert.False(t, ok)
}
