package fleet

import "strings"

// Filter selects a subset of the registry. Filters are pure predicates over
// a registry snapshot: a dispatch evaluates its filter exactly once, so
// batch membership stays stable even if new devices appear mid-operation.
//
// The zero Filter matches nothing; use All, type tokens, or an explicit IP
// set.
type Filter struct {
	// All matches every device regardless of the other fields.
	All bool

	// Types matches devices whose classified type is in the set.
	Types []DeviceType

	// IPs matches devices by exact IP address.
	IPs []string
}

// FilterAll matches every device in the registry.
func FilterAll() Filter { return Filter{All: true} }

// FilterTypes matches devices of the given types.
func FilterTypes(types ...DeviceType) Filter { return Filter{Types: types} }

// FilterIPs matches devices with the given IP addresses.
func FilterIPs(ips ...string) Filter { return Filter{IPs: ips} }

// Matches reports whether the device passes the filter.
func (f Filter) Matches(d Device) bool {
	if f.All {
		return true
	}
	for _, t := range f.Types {
		if d.Type == t {
			return true
		}
	}
	for _, ip := range f.IPs {
		if d.IP == ip {
			return true
		}
	}
	return false
}

// IsZero reports whether the filter selects nothing.
func (f Filter) IsZero() bool {
	return !f.All && len(f.Types) == 0 && len(f.IPs) == 0
}

// ParseFilter builds a Filter from CLI-style inputs: all (boolean flag), a
// comma-separated list of type tokens, and a comma-separated list of IPs.
// Type and IP selections combine as a union, matching the bulk command's
// target semantics.
func ParseFilter(all bool, typeList string, ipList string) (Filter, error) {
	f := Filter{All: all}
	if typeList != "" {
		for _, tok := range strings.Split(typeList, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			if strings.EqualFold(tok, "all") {
				f.All = true
				continue
			}
			types, err := ExpandTypeToken(tok)
			if err != nil {
				return Filter{}, err
			}
			f.Types = append(f.Types, types...)
		}
	}
	if ipList != "" {
		for _, ip := range strings.Split(ipList, ",") {
			ip = strings.TrimSpace(ip)
			if ip != "" {
				f.IPs = append(f.IPs, ip)
			}
		}
	}
	return f, nil
}
