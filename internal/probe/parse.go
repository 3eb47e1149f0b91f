package probe

import (
	"regexp"
	"strconv"
	"strings"

	"relayping/internal/model"
)

// Grammar identifies the summary format printed by a ping implementation.
type Grammar int

const (
	// GrammarQuad is the POSIX summary "min/avg/max/mdev = 1.0/2.0/3.0/0.5 ms".
	GrammarQuad Grammar = iota
	// GrammarSingle is the Windows summary "Average = 42ms".
	GrammarSingle
)

func (g Grammar) String() string {
	switch g {
	case GrammarQuad:
		return "quad"
	case GrammarSingle:
		return "single"
	}
	return "unknown"
}

const averageMarker = "Average = "

var (
	quadRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)/(\d+(?:\.\d+)?)/(\d+(?:\.\d+)?)/(\d+(?:\.\d+)?)`)
	singleRe = regexp.MustCompile(regexp.QuoteMeta(averageMarker) + `(\S+)`)
)

// Parse extracts latency statistics from raw ping output. It never returns a
// zero latency for output it could not read: ok is false instead.
func Parse(raw string, g Grammar) (model.LatencyStats, bool) {
	switch g {
	case GrammarQuad:
		return parseQuad(raw)
	case GrammarSingle:
		return parseSingle(raw)
	}
	return model.LatencyStats{}, false
}

func parseQuad(raw string) (model.LatencyStats, bool) {
	m := quadRe.FindStringSubmatch(raw)
	if m == nil {
		return model.LatencyStats{}, false
	}

	var vals [4]float64
	for i := range vals {
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil || v < 0 {
			return model.LatencyStats{}, false
		}
		vals[i] = v
	}

	return model.LatencyStats{
		MeanMs:   vals[1],
		MinMs:    &vals[0],
		MaxMs:    &vals[2],
		JitterMs: &vals[3],
	}, true
}

func parseSingle(raw string) (model.LatencyStats, bool) {
	m := singleRe.FindStringSubmatch(raw)
	if m == nil {
		return model.LatencyStats{}, false
	}

	v, err := strconv.Atoi(strings.TrimSuffix(m[1], "ms"))
	if err != nil || v < 0 {
		return model.LatencyStats{}, false
	}
	return model.LatencyStats{MeanMs: float64(v)}, true
}
