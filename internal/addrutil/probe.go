package addrutil

import (
	"net/netip"
	"strings"

	"relayping/internal/model"
)

// ProbeAddr picks the address to ping for a relay.
//
// The catalog publishes bare addresses, but some entries carry an empty
// IPv6 field or a bracketed/zoned form. We normalise to a plain literal and
// refuse anything that is not an IP so the ping utility never sees a
// hostname (no DNS lookups during a run).
func ProbeAddr(r model.RelayEntry, ipv6 bool) (string, bool) {
	raw := r.IPv4Addr
	if ipv6 {
		raw = r.IPv6Addr
	}

	addr, ok := parseAddr(raw)
	if !ok {
		return "", false
	}
	if ipv6 != (addr.Is6() && !addr.Is4In6()) {
		return "", false
	}
	if !ipv6 {
		addr = addr.Unmap()
	}
	return addr.String(), true
}

func parseAddr(raw string) (netip.Addr, bool) {
	a := strings.TrimSpace(raw)
	if a == "" {
		return netip.Addr{}, false
	}
	a = strings.Trim(a, "[]")
	// Drop a CIDR suffix if the catalog ever publishes one.
	if i := strings.IndexByte(a, '/'); i >= 0 {
		a = a[:i]
	}

	addr, err := netip.ParseAddr(a)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone(""), true
}
