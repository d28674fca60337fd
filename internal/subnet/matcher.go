package subnet

import (
	"net"
	"strings"
)

type network struct {
	cidr   string
	prefix int
	net    *net.IPNet
}

// Matcher answers longest-prefix membership queries against a set of
// networks such as the DHCP server networks.
type Matcher struct {
	networks []network
}

func New() *Matcher {
	return &Matcher{}
}

// WithNetworks returns a matcher for cidrs. Entries that are not valid
// CIDR prefixes are skipped.
func (m *Matcher) WithNetworks(cidrs []string) *Matcher {
	nets := make([]network, 0, len(cidrs))
	for _, raw := range cidrs {
		cidr := strings.TrimSpace(raw)
		if cidr == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		prefix, _ := ipNet.Mask.Size()
		nets = append(nets, network{cidr: ipNet.String(), prefix: prefix, net: ipNet})
	}
	return &Matcher{networks: nets}
}

// Len returns the number of usable networks.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.networks)
}

// Match returns the most specific network containing ipStr, or "".
func (m *Matcher) Match(ipStr string) string {
	if m == nil {
		return ""
	}
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil {
		return ""
	}
	bestPrefix := -1
	best := ""
	for _, network := range m.networks {
		if network.net.Contains(ip) && network.prefix > bestPrefix {
			bestPrefix = network.prefix
			best = network.cidr
		}
	}
	return best
}

// Contains reports whether any network holds ipStr. With no networks
// every address is outside.
func (m *Matcher) Contains(ipStr string) bool {
	return m.Match(ipStr) != ""
}
