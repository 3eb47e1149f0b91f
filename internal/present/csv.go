package present

import (
	"encoding/csv"
	"io"
	"strconv"

	"relayping/internal/rank"
)

// WriteCSV writes the ranking with a fixed column order. Optional statistics
// the probe did not report are left empty.
func WriteCSV(w io.Writer, list rank.List, domainSuffix string) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{
		"rank",
		"hostname",
		"mean_ms",
		"min_ms",
		"max_ms",
		"jitter_ms",
		"port_speed_gbps",
		"country_code",
		"city_code",
		"provider",
		"owned",
		"stboot",
		"type",
		"ipv4_addr_in",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for i, r := range list {
		record := []string{
			strconv.Itoa(i + 1),
			r.Relay.FQDN(domainSuffix),
			formatMs(&r.MeanMs),
			formatMs(r.MinMs),
			formatMs(r.MaxMs),
			formatMs(r.JitterMs),
			strconv.Itoa(r.Relay.PortSpeed),
			r.Relay.CountryCode,
			r.Relay.CityCode,
			r.Relay.Provider,
			strconv.FormatBool(r.Relay.Owned),
			strconv.FormatBool(r.Relay.RAMBooted),
			r.Relay.ServerType,
			r.Relay.IPv4Addr,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatMs(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 3, 64)
}
