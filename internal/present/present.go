package present

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"relayping/internal/catalog"
	"relayping/internal/rank"
)

// Format is an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ParseFormat accepts table, json or csv. The empty string means table.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("invalid output format %q (want table, json or csv)", value)
}

// Presenter writes rankings and listings in one format.
type Presenter struct {
	w      io.Writer
	format Format
	// DomainSuffix is appended to hostnames in table and CSV output.
	DomainSuffix string
}

func New(w io.Writer, format Format) *Presenter {
	return &Presenter{w: w, format: format}
}

// Ranking writes the ranked relays.
func (p *Presenter) Ranking(list rank.List) error {
	switch p.format {
	case FormatJSON:
		if list == nil {
			list = rank.List{}
		}
		return p.json(list)
	case FormatCSV:
		return WriteCSV(p.w, list, p.DomainSuffix)
	}
	return p.table(list)
}

func (p *Presenter) table(list rank.List) error {
	table := tablewriter.NewWriter(p.w)
	table.SetHeader([]string{"Hostname", "Latency", "Port speed", "Country", "City", "Provider", "Ownership"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
	})
	for _, r := range list {
		table.Append([]string{
			r.Relay.FQDN(p.DomainSuffix),
			strconv.FormatFloat(r.MeanMs, 'f', 1, 64) + " ms",
			strconv.Itoa(r.Relay.PortSpeed) + " Gbps",
			r.Relay.CountryName,
			r.Relay.CityName,
			r.Relay.Provider,
			r.Relay.Ownership(),
		})
	}
	table.Render()
	return nil
}

// Locations writes a country or city listing as "code - name" lines.
func (p *Presenter) Locations(locs []catalog.Location) error {
	if p.format == FormatJSON {
		if locs == nil {
			locs = []catalog.Location{}
		}
		return p.json(locs)
	}
	for _, l := range locs {
		if _, err := fmt.Fprintf(p.w, "%s - %s\n", l.Code, l.Name); err != nil {
			return err
		}
	}
	return nil
}

// Providers writes one provider per line.
func (p *Presenter) Providers(names []string) error {
	if p.format == FormatJSON {
		if names == nil {
			names = []string{}
		}
		return p.json(names)
	}
	for _, n := range names {
		if _, err := fmt.Fprintln(p.w, n); err != nil {
			return err
		}
	}
	return nil
}

func (p *Presenter) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
