// Package subnet implements the IP Allocator (C1): picking the next free
// host address in an IPv4 CIDR subnet, and checking whether two addresses
// share a subnet. It is a pure, dependency-free leaf used by the
// virtual-IP service and the broadcaster's same-subnet filter.
package subnet

import (
	"encoding/binary"
	"net"
)

// NextFreeHost returns the numerically smallest usable host address in
// cidr that is not present in used, or "" if none is available. Network and
// broadcast addresses are never returned. Invalid or non-IPv4 input, and
// subnets with no usable host bits (/31, /32), return "". The result is
// deterministic: the same (cidr, used) pair always yields the same answer.
func NextFreeHost(cidr string, used map[string]struct{}) string {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return ""
	}
	ip4 := network.IP.To4()
	if ip4 == nil {
		return ""
	}
	ones, bits := network.Mask.Size()
	if bits != 32 || bits-ones < 2 {
		// /31 and /32 have no network+host+broadcast split worth iterating.
		return ""
	}

	base := binary.BigEndian.Uint32(ip4)
	hostBits := uint32(bits - ones)
	count := uint32(1) << hostBits
	broadcast := base + count - 1

	for addr := base + 1; addr < broadcast; addr++ {
		candidate := uint32ToIP(addr)
		if _, ok := used[candidate]; !ok {
			return candidate
		}
	}
	return ""
}

// SameSubnet reports whether ipA and ipB both parse as IPv4 addresses that
// lie within cidr. It returns false (never panics) on any parse failure.
func SameSubnet(ipA, ipB, cidr string) bool {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	a := net.ParseIP(ipA).To4()
	b := net.ParseIP(ipB).To4()
	if a == nil || b == nil {
		return false
	}
	return network.Contains(a) && network.Contains(b)
}

// ValidSubnet reports whether cidr is a syntactically valid IPv4 CIDR
// network with at least one usable host.
func ValidSubnet(cidr string) bool {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	if network.IP.To4() == nil {
		return false
	}
	ones, bits := network.Mask.Size()
	return bits == 32 && bits-ones >= 2
}

func uint32ToIP(v uint32) string {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, v)
	return b.String()
}
