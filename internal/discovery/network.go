package discovery

import (
	"fmt"
	"net"
)

// maxHostBits caps subnet expansion at a /22 (1022 hosts). Larger ranges
// take minutes even at full parallelism and are almost always a typo.
const maxHostBits = 10

// EnumerateHosts expands a CIDR into the list of probeable host addresses.
// The network and broadcast addresses are skipped for IPv4 subnets smaller
// than /31.
func EnumerateHosts(cidr string) ([]string, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid network %q: %w", cidr, err)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("invalid network %q: only IPv4 ranges are supported", cidr)
	}

	ones, bits := ipnet.Mask.Size()
	hostBits := bits - ones
	if hostBits > maxHostBits {
		return nil, fmt.Errorf("network %q too large: at most /%d supported", cidr, bits-maxHostBits)
	}

	// /31 and /32 have no separate network or broadcast address.
	if hostBits <= 1 {
		hosts := make([]string, 0, 2)
		for addr := ipnet.IP.Mask(ipnet.Mask); ipnet.Contains(addr); addr = nextIP(addr) {
			hosts = append(hosts, addr.String())
		}
		return hosts, nil
	}

	total := 1 << hostBits
	hosts := make([]string, 0, total-2)
	addr := ipnet.IP.Mask(ipnet.Mask).To4()
	for i := 0; i < total; i++ {
		if i != 0 && i != total-1 {
			hosts = append(hosts, addr.String())
		}
		addr = nextIP(addr)
	}
	return hosts, nil
}

// nextIP returns addr+1 without mutating its argument.
func nextIP(addr net.IP) net.IP {
	next := make(net.IP, len(addr))
	copy(next, addr)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			break
		}
	}
	return next
}

// LocalNetworks returns the IPv4 networks of all non-loopback interfaces
// that are up, normalized to their CIDR form. Used when the caller does not
// name a network to scan.
func LocalNetworks() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing network interfaces: %w", err)
	}

	var networks []string
	seen := make(map[string]bool)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			masked := &net.IPNet{IP: ipnet.IP.Mask(ipnet.Mask), Mask: ipnet.Mask}
			cidr := masked.String()
			if !seen[cidr] {
				seen[cidr] = true
				networks = append(networks, cidr)
			}
		}
	}
	if len(networks) == 0 {
		return nil, fmt.Errorf("no usable IPv4 networks found on local interfaces")
	}
	return networks, nil
}
