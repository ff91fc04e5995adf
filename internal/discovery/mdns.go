package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"axectl/internal/logging"
)

const (
	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultMDNSTimeout bounds the browse phase of a discovery run.
	DefaultMDNSTimeout = 5 * time.Second
)

// serviceTypes lists the mDNS service types miners advertise. Both firmware
// families register a plain HTTP service; some NerdQAxe builds also publish
// a dedicated type.
var serviceTypes = []string{
	"_http._tcp",
	"_axeos._tcp",
	"_nerdqaxe._tcp",
}

// hostnameHints are lowercase substrings of mDNS hostnames that mark likely
// miners. Matching entries are probed first; the HTTP probe makes the final
// identification either way.
var hostnameHints = []string{"bitaxe", "nerdqaxe", "nerdaxe", "axeos"}

// Candidate is an address produced by the mDNS browse phase, before the HTTP
// probe confirms what is actually listening there.
type Candidate struct {
	IP       string
	Hostname string
}

// MDNSBrowser finds candidate miner addresses via multicast DNS.
type MDNSBrowser struct {
	Timeout time.Duration
}

// NewMDNSBrowser creates a browser with the default timeout.
func NewMDNSBrowser() *MDNSBrowser {
	return &MDNSBrowser{Timeout: DefaultMDNSTimeout}
}

// Browse queries all miner service types and returns the deduplicated
// candidates heard before the timeout. Resolver failures (no multicast
// interface, sandboxed environments) are logged and reported as an empty
// result so the subnet scan can still run.
//
// Each service type gets its own resolver because zeroconf owns the entries
// channel for the lifetime of a Browse call.
func (b *MDNSBrowser) Browse(ctx context.Context) []Candidate {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultMDNSTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan Candidate)
	var wg sync.WaitGroup
	for _, service := range serviceTypes {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			logging.Warn(fmt.Sprintf("mDNS resolver unavailable: %v", err))
			break
		}

		entries := make(chan *zeroconf.ServiceEntry)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range entries {
				if c, ok := parseServiceEntry(entry); ok {
					results <- c
				}
			}
		}()

		if err := resolver.Browse(ctx, service, ServiceDomain, entries); err != nil {
			logging.Warn(fmt.Sprintf("mDNS browse for %s failed: %v", service, err))
			// Browse owns closing entries only on success.
			close(entries)
		}
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var found []Candidate
	seen := make(map[string]bool)
	for c := range results {
		if !seen[c.IP] {
			seen[c.IP] = true
			found = append(found, c)
		}
	}
	return found
}

// parseServiceEntry extracts a probeable IPv4 candidate from a service
// entry. Entries without an IPv4 address are dropped.
func parseServiceEntry(entry *zeroconf.ServiceEntry) (Candidate, bool) {
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" {
		return Candidate{}, false
	}
	return Candidate{IP: ip, Hostname: strings.TrimSuffix(entry.HostName, ".")}, true
}

// LooksLikeMiner reports whether the candidate's hostname carries a known
// miner hint. False does not exclude it; it only loses probe priority.
func (c Candidate) LooksLikeMiner() bool {
	name := strings.ToLower(c.Hostname)
	for _, hint := range hostnameHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}
