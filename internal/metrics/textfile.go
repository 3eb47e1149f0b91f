package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"relayping/internal/model"
)

// NewRegistry builds a registry describing one run: per-relay latency gauges
// and the run counters from s.
func NewRegistry(s Summary, results []model.ProbeResult) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	latency := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relayping",
		Name:      "relay_latency_mean_ms",
		Help:      "Mean ICMP echo round-trip time to the relay in milliseconds.",
	}, []string{"hostname", "country", "city", "provider"})
	jitter := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relayping",
		Name:      "relay_latency_jitter_ms",
		Help:      "Round-trip deviation reported by the probe in milliseconds.",
	}, []string{"hostname"})
	counts := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relayping",
		Name:      "relays",
		Help:      "Relays per pipeline stage of the last run.",
	}, []string{"stage"})

	for _, c := range []prometheus.Collector{latency, jitter, counts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	for _, r := range results {
		latency.WithLabelValues(r.Relay.Hostname, r.Relay.CountryCode, r.Relay.CityCode, r.Relay.Provider).Set(r.MeanMs)
		if r.JitterMs != nil {
			jitter.WithLabelValues(r.Relay.Hostname).Set(*r.JitterMs)
		}
	}
	counts.WithLabelValues("candidate").Set(float64(s.Candidates))
	counts.WithLabelValues("probed").Set(float64(s.Probed))
	counts.WithLabelValues("reachable").Set(float64(s.Reachable))

	return reg, nil
}

// WriteTextfile writes the run in the node_exporter textfile format. The
// file is replaced atomically on every run.
func WriteTextfile(path string, s Summary, results []model.ProbeResult) error {
	reg, err := NewRegistry(s, results)
	if err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}
