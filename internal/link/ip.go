package link

import (
	"fmt"
	"net/netip"
)

// IPFromString parses a dotted IPv4 address into the host-order uint32
// carried by NetworkParams, first octet in the top byte.
func IPFromString(s string) (uint32, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return 0, err
	}
	if !addr.Is4() {
		return 0, fmt.Errorf("%s is not an IPv4 address", s)
	}
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// IPToString formats a host-order IPv4 address.
func IPToString(ip uint32) string {
	return addrFromUint32(ip).String()
}

func addrFromUint32(ip uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)})
}
