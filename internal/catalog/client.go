package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	"relayping/internal/model"
)

// DefaultBaseURL is the public relay list.
const DefaultBaseURL = "https://api.mullvad.net/www/relays"

// TypeAll requests every server type at once.
const TypeAll = "all"

// ServerTypes lists the accepted catalog segments.
var ServerTypes = []string{model.ServerTypeOpenVPN, model.ServerTypeBridge, model.ServerTypeWireGuard, TypeAll}

// ValidServerType reports whether t is an accepted catalog segment.
func ValidServerType(t string) bool {
	for _, s := range ServerTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Client is a thin HTTP client for the relay catalog.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// Options tune the catalog client. Zero values use the defaults.
type Options struct {
	Timeout  time.Duration
	RetryMax int
	Logger   hclog.Logger
}

// NewClient creates a client for the given base URL (e.g. https://host/relays).
func NewClient(baseURL string, opts Options) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = opts.Timeout
	rc.RetryMax = opts.RetryMax
	rc.Logger = opts.Logger.Named("catalog")

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
	}
}

// Fetch downloads and decodes the relays of the given server type.
func (c *Client) Fetch(ctx context.Context, serverType string) ([]model.RelayEntry, error) {
	if serverType == "" {
		serverType = TypeAll
	}
	if !ValidServerType(serverType) {
		return nil, fmt.Errorf("invalid server type %q", serverType)
	}

	endpoint := c.baseURL + "/" + serverType + "/"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch relays: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return nil, fmt.Errorf("fetch relays: %s: %s", res.Status, msg)
		}
		return nil, fmt.Errorf("fetch relays: %s", res.Status)
	}

	entries, err := Decode(res.Body)
	if err != nil {
		return nil, fmt.Errorf("decode relays: %w", err)
	}
	return entries, nil
}

// Decode parses a catalog JSON array. Unknown fields are ignored.
func Decode(r io.Reader) ([]model.RelayEntry, error) {
	var entries []model.RelayEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, err
	}
	for i, e := range entries {
		if e.Hostname == "" {
			return nil, fmt.Errorf("relay at index %d has no hostname", i)
		}
		if e.PortSpeed < 0 {
			return nil, fmt.Errorf("relay %s has negative port speed %d", e.Hostname, e.PortSpeed)
		}
	}
	return entries, nil
}
