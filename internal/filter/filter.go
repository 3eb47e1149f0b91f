package filter

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"relayping/internal/model"
)

// RunMode selects relays by boot medium.
type RunMode string

const (
	RunModeAny  RunMode = "any"
	RunModeRAM  RunMode = "ram"  // stateless, booted from volatile storage
	RunModeDisk RunMode = "disk" // booted from persistent storage
)

// Ownership selects relays by who operates the hardware.
type Ownership string

const (
	OwnershipAny    Ownership = "any"
	OwnershipOwned  Ownership = "owned"
	OwnershipRented Ownership = "rented"
)

// ParseRunMode accepts "", any, ram or disk. The empty string means any.
func ParseRunMode(value string) (RunMode, error) {
	switch RunMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", RunModeAny:
		return RunModeAny, nil
	case RunModeRAM:
		return RunModeRAM, nil
	case RunModeDisk:
		return RunModeDisk, nil
	}
	return "", fmt.Errorf("invalid run mode %q (want any, ram or disk)", value)
}

// ParseOwnership accepts "", any, owned or rented. The empty string means any.
func ParseOwnership(value string) (Ownership, error) {
	switch Ownership(strings.ToLower(strings.TrimSpace(value))) {
	case "", OwnershipAny:
		return OwnershipAny, nil
	case OwnershipOwned:
		return OwnershipOwned, nil
	case OwnershipRented:
		return OwnershipRented, nil
	}
	return "", fmt.Errorf("invalid ownership %q (want any, owned or rented)", value)
}

// Criteria is the operator's selection. Zero values leave a field
// unconstrained.
type Criteria struct {
	Country         string
	City            string
	MinPortSpeed    int
	RunMode         RunMode
	Provider        string
	Ownership       Ownership
	IncludeInactive bool
}

// Predicate reports whether a relay satisfies one criterion.
type Predicate func(model.RelayEntry) bool

// Predicates returns one independent predicate per criterion.
func (c Criteria) Predicates() []Predicate {
	return []Predicate{
		Country(c.Country),
		City(c.City),
		MinPortSpeed(c.MinPortSpeed),
		Mode(c.RunMode),
		Provider(c.Provider),
		Owner(c.Ownership),
		Activity(c.IncludeInactive),
	}
}

// Match reports whether r passes every predicate.
func (c Criteria) Match(r model.RelayEntry) bool {
	return All(c.Predicates()...)(r)
}

// Filter returns the entries matching c in their original order. The input
// slice is not modified.
func Filter(entries []model.RelayEntry, c Criteria) []model.RelayEntry {
	match := All(c.Predicates()...)
	return lo.Filter(entries, func(r model.RelayEntry, _ int) bool {
		return match(r)
	})
}

// All combines predicates with logical AND.
func All(preds ...Predicate) Predicate {
	return func(r model.RelayEntry) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

func Country(code string) Predicate {
	return func(r model.RelayEntry) bool {
		return code == "" || strings.EqualFold(code, r.CountryCode)
	}
}

func City(code string) Predicate {
	return func(r model.RelayEntry) bool {
		return code == "" || strings.EqualFold(code, r.CityCode)
	}
}

func MinPortSpeed(gbps int) Predicate {
	return func(r model.RelayEntry) bool {
		return r.PortSpeed >= gbps
	}
}

func Mode(mode RunMode) Predicate {
	return func(r model.RelayEntry) bool {
		switch mode {
		case RunModeRAM:
			return r.RAMBooted
		case RunModeDisk:
			return !r.RAMBooted
		default:
			return true
		}
	}
}

// Provider matches exactly; provider names are not normalized upstream.
func Provider(name string) Predicate {
	return func(r model.RelayEntry) bool {
		return name == "" || name == r.Provider
	}
}

func Owner(o Ownership) Predicate {
	return func(r model.RelayEntry) bool {
		switch o {
		case OwnershipOwned:
			return r.Owned
		case OwnershipRented:
			return !r.Owned
		default:
			return true
		}
	}
}

func Activity(includeInactive bool) Predicate {
	return func(r model.RelayEntry) bool {
		return r.Active || includeInactive
	}
}
