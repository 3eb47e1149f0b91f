package metrics

import (
	"math"
	"sort"

	"relayping/internal/model"
)

// Summary is a basic statistics snapshot of one run.
type Summary struct {
	Candidates int
	Probed     int
	Reachable  int
	BestHost   string
	BestMs     float64
	AvgMs      float64
	P95Ms      float64
	WorstMs    float64
	AvgJitter  float64 // over results that report jitter
}

// LossPct is the share of probed relays that did not answer.
func (s Summary) LossPct() float64 {
	if s.Probed == 0 {
		return 0
	}
	return 100.0 * float64(s.Probed-s.Reachable) / float64(s.Probed)
}

// Summarize computes summary metrics over the reachable relays of a run.
func Summarize(candidates, probed int, results []model.ProbeResult) Summary {
	s := Summary{Candidates: candidates, Probed: probed, Reachable: len(results)}
	if len(results) == 0 {
		return s
	}

	values := make([]float64, 0, len(results))
	var sum, sumJitter float64
	jitterCount := 0
	best := results[0]
	worst := 0.0

	for _, r := range results {
		values = append(values, r.MeanMs)
		sum += r.MeanMs
		if r.JitterMs != nil {
			sumJitter += *r.JitterMs
			jitterCount++
		}
		if r.MeanMs < best.MeanMs {
			best = r
		}
		if r.MeanMs > worst {
			worst = r.MeanMs
		}
	}

	sort.Float64s(values)
	s.BestHost = best.Relay.Hostname
	s.BestMs = best.MeanMs
	s.AvgMs = sum / float64(len(results))
	s.P95Ms = percentile(values, 0.95)
	s.WorstMs = worst
	if jitterCount > 0 {
		s.AvgJitter = sumJitter / float64(jitterCount)
	}
	return s
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
