package rank

import (
	"sort"
	"sync"

	"relayping/internal/model"
)

// List is a ranking, fastest first.
type List []model.ProbeResult

// Rank sorts results by mean latency, keeping the input order for equal
// means, and keeps the first topN. topN == 0 keeps everything. The input
// slice is not modified.
func Rank(results []model.ProbeResult, topN int) List {
	out := make(List, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MeanMs < out[j].MeanMs
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// Best returns the fastest result.
func (l List) Best() (model.ProbeResult, bool) {
	if len(l) == 0 {
		return model.ProbeResult{}, false
	}
	return l[0], true
}

// Collector accumulates probe results from concurrent workers in the order
// they complete.
type Collector struct {
	mu      sync.Mutex
	results []model.ProbeResult
}

func (c *Collector) Add(r model.ProbeResult) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Results returns a copy of everything collected so far.
func (c *Collector) Results() []model.ProbeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ProbeResult, len(c.results))
	copy(out, c.results)
	return out
}

// Rank ranks the collected results.
func (c *Collector) Rank(topN int) List {
	return Rank(c.Results(), topN)
}
