package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Server types published by the relay catalog.
const (
	ServerTypeOpenVPN   = "openvpn"
	ServerTypeBridge    = "bridge"
	ServerTypeWireGuard = "wireguard"
)

// RelayEntry is one relay as published by the catalog.
type RelayEntry struct {
	Hostname    string `json:"hostname"`
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	CityCode    string `json:"city_code"`
	CityName    string `json:"city_name"`
	Active      bool   `json:"active"`
	Owned       bool   `json:"owned"`
	Provider    string `json:"provider"`
	IPv4Addr    string `json:"ipv4_addr_in"`
	IPv6Addr    string `json:"ipv6_addr_in"`
	PortSpeed   int    `json:"network_port_speed"` // Gbps
	RAMBooted   bool   `json:"stboot"`
	ServerType  string `json:"type"`
}

// FQDN joins the relay hostname with the operator domain. An empty suffix
// returns the bare hostname.
func (r RelayEntry) FQDN(suffix string) string {
	suffix = strings.Trim(suffix, ".")
	if suffix == "" || strings.HasSuffix(r.Hostname, "."+suffix) {
		return r.Hostname
	}
	return r.Hostname + "." + suffix
}

// Ownership returns a short label for the owned flag.
func (r RelayEntry) Ownership() string {
	if r.Owned {
		return "owned"
	}
	return "rented"
}

// LatencyStats holds the numbers extracted from one probe. MeanMs is always
// set; the others are nil when the probe output does not carry them.
type LatencyStats struct {
	MeanMs   float64  `json:"mean_ms"`
	MinMs    *float64 `json:"min_ms,omitempty"`
	MaxMs    *float64 `json:"max_ms,omitempty"`
	JitterMs *float64 `json:"jitter_ms,omitempty"`
}

// ProbeResult is a successfully probed relay.
type ProbeResult struct {
	Relay RelayEntry `json:"relay"`
	LatencyStats
}

// Summary renders the stats as "min/avg/max/jitter" in milliseconds, or just
// the mean when the extremes are unknown.
func (s LatencyStats) Summary() string {
	if s.MinMs == nil || s.MaxMs == nil || s.JitterMs == nil {
		return strconv.FormatFloat(s.MeanMs, 'f', 3, 64)
	}
	return fmt.Sprintf("%.3f/%.3f/%.3f/%.3f", *s.MinMs, s.MeanMs, *s.MaxMs, *s.JitterMs)
}
