package probe

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Platform is the operating system whose ping utility is invoked.
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformDarwin  Platform = "darwin"
	PlatformFreeBSD Platform = "freebsd"
	PlatformWindows Platform = "windows"
)

// MinInterval is the smallest interval between echoes, in seconds, that
// unprivileged ping accepts.
const MinInterval = 0.2

// FixedIntervalSeconds is the echo interval of platforms whose ping does not
// take one.
const FixedIntervalSeconds = 1.0

// HostPlatform returns the platform of the running binary.
func HostPlatform() Platform {
	return Platform(runtime.GOOS)
}

// ParsePlatform accepts a GOOS-style name. The empty string means the host.
func ParsePlatform(value string) (Platform, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		v = runtime.GOOS
	}
	switch p := Platform(v); p {
	case PlatformLinux, PlatformDarwin, PlatformFreeBSD, PlatformWindows:
		return p, nil
	}
	return "", fmt.Errorf("unsupported platform %q", value)
}

// Grammar returns the summary grammar printed by the platform's ping.
func (p Platform) Grammar() Grammar {
	if p == PlatformWindows {
		return GrammarSingle
	}
	return GrammarQuad
}

// FixedInterval reports whether the platform's ping ignores a caller-chosen
// interval.
func (p Platform) FixedInterval() bool {
	return p == PlatformWindows
}

// Command returns the program and arguments that send count echoes to addr.
func (p Platform) Command(addr string, count int, interval float64, ipv6 bool) (string, []string) {
	n := strconv.Itoa(count)
	i := strconv.FormatFloat(interval, 'f', -1, 64)

	switch p {
	case PlatformWindows:
		args := []string{"-n", n}
		if ipv6 {
			args = append(args, "-6")
		}
		return "ping", append(args, addr)
	case PlatformDarwin, PlatformFreeBSD:
		name := "ping"
		if ipv6 {
			name = "ping6"
		}
		return name, []string{"-n", "-c", n, "-i", i, addr}
	default:
		args := []string{"-n", "-c", n, "-i", i}
		if ipv6 {
			args = append(args, "-6")
		}
		return "ping", append(args, addr)
	}
}
