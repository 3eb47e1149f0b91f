package catalog

import (
	"errors"
	"sort"

	"github.com/samber/lo"

	"relayping/internal/model"
)

// ErrConflictingListings is returned when more than one listing is requested.
var ErrConflictingListings = errors.New("only one of --list-countries, --list-cities, --list-providers may be set")

// Listing names a catalog enumeration that bypasses filtering and probing.
type Listing int

const (
	ListNone Listing = iota
	ListCountries
	ListCities
	ListProviders
)

func (l Listing) String() string {
	switch l {
	case ListCountries:
		return "countries"
	case ListCities:
		return "cities"
	case ListProviders:
		return "providers"
	}
	return "none"
}

// SelectListing maps the listing switches to a single Listing.
func SelectListing(countries, cities, providers bool) (Listing, error) {
	selected := ListNone
	n := 0
	for _, c := range []struct {
		on bool
		l  Listing
	}{{countries, ListCountries}, {cities, ListCities}, {providers, ListProviders}} {
		if c.on {
			selected = c.l
			n++
		}
	}
	if n > 1 {
		return ListNone, ErrConflictingListings
	}
	return selected, nil
}

// Location is a code with its display name.
type Location struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Countries returns one Location per distinct country code, sorted by code.
// The first name seen for a code wins.
func Countries(entries []model.RelayEntry) []Location {
	return distinct(entries, func(e model.RelayEntry) Location {
		return Location{Code: e.CountryCode, Name: e.CountryName}
	})
}

// Cities returns one Location per distinct city code, sorted by code.
func Cities(entries []model.RelayEntry) []Location {
	return distinct(entries, func(e model.RelayEntry) Location {
		return Location{Code: e.CityCode, Name: e.CityName}
	})
}

// Providers returns the sorted set of provider names.
func Providers(entries []model.RelayEntry) []string {
	names := lo.Uniq(lo.Map(entries, func(e model.RelayEntry, _ int) string {
		return e.Provider
	}))
	sort.Strings(names)
	return names
}

func distinct(entries []model.RelayEntry, key func(model.RelayEntry) Location) []Location {
	out := lo.UniqBy(lo.Map(entries, func(e model.RelayEntry, _ int) Location {
		return key(e)
	}), func(l Location) string {
		return l.Code
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
