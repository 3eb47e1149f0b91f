package vantage

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

// Point is the public side of the host taking the measurements. Latency to
// a relay only means something together with where it was measured from.
type Point struct {
	PublicAddr string `json:"public_addr"`
	NATType    string `json:"nat_type"`
}

// Discover queries STUN servers for the public mapped address of this host.
// Note: The mapped address is for the STUN socket and may not match the
// source port of ICMP echoes; only the IP is meaningful for relay selection.
func Discover(ctx context.Context, servers []string, timeout time.Duration) (Point, error) {
	if len(servers) == 0 {
		return Point{NATType: NATTypeUnknown}, fmt.Errorf("no STUN servers provided")
	}

	results := make([]string, 0, len(servers))
	var lastErr error
	for _, server := range servers {
		addr, err := probeServer(ctx, server, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		results = append(results, addr)
	}

	if len(results) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("STUN probe failed")
		}
		return Point{NATType: NATTypeUnknown}, lastErr
	}

	return Point{PublicAddr: results[0], NATType: Classify(results)}, nil
}

// Classify infers NAT type by comparing mapped addresses from multiple servers.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATTypeUnknown
	}
	first := addrs[0]
	symmetric := false
	for _, addr := range addrs[1:] {
		if addr != first {
			symmetric = true
			break
		}
	}
	if symmetric {
		return NATTypeSymmetric
	}
	return NATTypeConeOrRestricted
}

// IP returns the public address without the mapped port.
func (p Point) IP() string {
	if ap, err := netip.ParseAddrPort(p.PublicAddr); err == nil {
		return ap.Addr().String()
	}
	return p.PublicAddr
}

func probeServer(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uri, err := parseServer(server)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", fmt.Errorf("stun %s: %w", uri.Host, err)
	}
	defer client.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type answer struct {
		addr stun.XORMappedAddress
		err  error
	}
	// Buffered so the callback never blocks once we stop listening.
	answers := make(chan answer, 2)

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	go func() {
		err := client.Do(msg, func(ev stun.Event) {
			var a answer
			if ev.Error != nil {
				a.err = ev.Error
			} else {
				a.err = a.addr.GetFrom(ev.Message)
			}
			answers <- a
		})
		if err != nil {
			answers <- answer{err: err}
		}
	}()

	select {
	case a := <-answers:
		if a.err != nil {
			return "", fmt.Errorf("stun %s: %w", uri.Host, a.err)
		}
		return a.addr.String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func parseServer(server string) (*stun.URI, error) {
	raw := strings.TrimSpace(server)
	if raw == "" {
		return nil, fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(raw, "stun:") && !strings.HasPrefix(raw, "stuns:") {
		raw = "stun:" + raw
	}
	return stun.ParseURI(raw)
}
