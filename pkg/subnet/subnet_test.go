package subnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextFreeHost(t *testing.T) {
	tests := []struct {
		name string
		cidr string
		used map[string]struct{}
		want string
	}{
		{
			name: "first host in empty /24",
			cidr: "10.0.0.0/24",
			used: map[string]struct{}{},
			want: "10.0.0.1",
		},
		{
			name: "skips used hosts in order",
			cidr: "10.0.0.0/24",
			used: map[string]struct{}{"10.0.0.1": {}, "10.0.0.2": {}},
			want: "10.0.0.3",
		},
		{
			name: "never returns network or broadcast",
			cidr: "192.168.0.0/30",
			used: map[string]struct{}{},
			want: "192.168.0.1",
		},
		{
			name: "exhausted /30 subnet",
			cidr: "192.168.0.0/30",
			used: map[string]struct{}{"192.168.0.1": {}, "192.168.0.2": {}},
			want: "",
		},
		{
			name: "/31 has no usable hosts",
			cidr: "10.0.0.0/31",
			used: map[string]struct{}{},
			want: "",
		},
		{
			name: "/32 has no usable hosts",
			cidr: "10.0.0.5/32",
			used: map[string]struct{}{},
			want: "",
		},
		{
			name: "invalid CIDR yields none",
			cidr: "not-a-cidr",
			used: map[string]struct{}{},
			want: "",
		},
		{
			name: "IPv6 is rejected",
			cidr: "2001:db8::/64",
			used: map[string]struct{}{},
			want: "",
		},
		{
			name: "stray used entries outside subnet are ignored",
			cidr: "10.0.0.0/29",
			used: map[string]struct{}{"10.0.0.1": {}, "10.0.1.99": {}},
			want: "10.0.0.2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextFreeHost(tt.cidr, tt.used))
		})
	}
}

func TestNextFreeHost_Deterministic(t *testing.T) {
	used := map[string]struct{}{"10.0.0.3": {}, "10.0.0.1": {}}
	first := NextFreeHost("10.0.0.0/24", used)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, NextFreeHost("10.0.0.0/24", used))
	}
}

func TestSameSubnet(t *testing.T) {
	assert.True(t, SameSubnet("10.0.0.1", "10.0.0.2", "10.0.0.0/24"))
	assert.False(t, SameSubnet("10.0.0.1", "10.0.1.2", "10.0.0.0/24"))
	assert.False(t, SameSubnet("garbage", "10.0.0.2", "10.0.0.0/24"))
	assert.False(t, SameSubnet("10.0.0.1", "10.0.0.2", "garbage"))
}

func TestValidSubnet(t *testing.T) {
	assert.True(t, ValidSubnet("10.0.0.0/24"))
	assert.True(t, ValidSubnet("192.168.0.0/30"))
	assert.False(t, ValidSubnet("10.0.0.0/31"))
	assert.False(t, ValidSubnet("10.0.0.0/32"))
	assert.False(t, ValidSubnet("not-a-cidr"))
	assert.False(t, ValidSubnet("2001:db8::/64"))
}
