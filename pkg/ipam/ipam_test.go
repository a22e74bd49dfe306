package ipam

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalhub/hub/pkg/model"
	"github.com/signalhub/hub/pkg/store"
)

func TestEnsureIP_AllocatesFirstFreeHost(t *testing.T) {
	mem := store.NewMemory()
	mem.PutOrg(model.Organization{ID: 1, Name: "acme", Subnet: "10.0.0.0/24"})
	svc := New(mem)

	ip, err := svc.EnsureIP(context.Background(), 100, 1)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", ip)
}

func TestEnsureIP_Stable(t *testing.T) {
	mem := store.NewMemory()
	mem.PutOrg(model.Organization{ID: 1, Name: "acme", Subnet: "10.0.0.0/24"})
	svc := New(mem)

	first, err := svc.EnsureIP(context.Background(), 100, 1)
	require.NoError(t, err)
	second, err := svc.EnsureIP(context.Background(), 100, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEnsureIP_DistinctUsersGetDistinctIPs(t *testing.T) {
	mem := store.NewMemory()
	mem.PutOrg(model.Organization{ID: 1, Name: "acme", Subnet: "10.0.0.0/24"})
	svc := New(mem)

	ip1, err := svc.EnsureIP(context.Background(), 100, 1)
	require.NoError(t, err)
	ip2, err := svc.EnsureIP(context.Background(), 200, 1)
	require.NoError(t, err)
	assert.NotEqual(t, ip1, ip2)
}

func TestEnsureIP_SubnetExhaustion(t *testing.T) {
	mem := store.NewMemory()
	mem.PutOrg(model.Organization{ID: 1, Name: "small", Subnet: "192.168.0.0/30"})
	svc := New(mem)
	ctx := context.Background()

	_, err := svc.EnsureIP(ctx, 1, 1)
	require.NoError(t, err)
	_, err = svc.EnsureIP(ctx, 2, 1)
	require.NoError(t, err)

	_, err = svc.EnsureIP(ctx, 3, 1)
	assert.ErrorIs(t, err, ErrSubnetFull)
}

// TestEnsureIP_ConcurrentSoundness exercises the uniqueness half of P1:
// concurrent EnsureIP calls for distinct users in one org all return an IP,
// and no two users receive the same one.
func TestEnsureIP_ConcurrentSoundness(t *testing.T) {
	mem := store.NewMemory()
	mem.PutOrg(model.Organization{ID: 1, Name: "acme", Subnet: "10.0.0.0/24"})
	svc := New(mem)

	const n = 50
	ips := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip, err := svc.EnsureIP(context.Background(), int64(i), 1)
			assert.NoError(t, err)
			ips[i] = ip
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, ip := range ips {
		require.NotEmpty(t, ip)
		assert.False(t, seen[ip], "duplicate ip %s", ip)
		seen[ip] = true
	}
}
