package netutil

import (
	"net"
	"strings"
)

// cgnatBlock is 100.64.0.0/10, used by carrier-grade NAT, Tailscale and WARP.
var cgnatBlock = &net.IPNet{
	IP:   net.IPv4(100, 64, 0, 0),
	Mask: net.CIDRMask(10, 32),
}

// tunnelNames are interface name fragments of common VPN adapters.
var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// Interface is the part of a network interface the relay heuristic looks at.
type Interface struct {
	Name  string
	Up    bool
	Loop  bool
	Addrs []net.IP
}

// ShouldForceRelay reports whether this host sits behind a VPN or CGNAT where
// direct media paths usually fail and TURN relaying should be forced.
func ShouldForceRelay() bool {
	return LikelyRelayed(systemInterfaces())
}

// LikelyRelayed applies the relay heuristic to a set of interfaces.
func LikelyRelayed(ifaces []Interface) bool {
	for _, iface := range ifaces {
		if !iface.Up || iface.Loop {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, fragment := range tunnelNames {
			if strings.Contains(name, fragment) {
				return true
			}
		}

		for _, ip := range iface.Addrs {
			if cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}

func systemInterfaces() []Interface {
	sys, err := net.Interfaces()
	if err != nil {
		return nil
	}

	out := make([]Interface, 0, len(sys))
	for _, iface := range sys {
		entry := Interface{
			Name: iface.Name,
			Up:   iface.Flags&net.FlagUp != 0,
			Loop: iface.Flags&net.FlagLoopback != 0,
		}
		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					entry.Addrs = append(entry.Addrs, v.IP)
				case *net.IPAddr:
					entry.Addrs = append(entry.Addrs, v.IP)
				}
			}
		}
		out = append(out, entry)
	}
	return out
}
