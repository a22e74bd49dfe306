// Package ipam implements the Virtual-IP Service (C8): allocate-if-absent
// semantics for a (user, org) pair, backed by the subnet allocator (C1) and
// the persistence port (C2).
package ipam

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalhub/hub/pkg/store"
	"github.com/signalhub/hub/pkg/subnet"
)

// maxAllocateRetries bounds the allocate-vs-conflict retry loop in
// EnsureIP. A conflict means another actor won the same candidate address
// concurrently; a handful of retries resolves normal contention without
// risking an unbounded loop under pathological conflict rates.
const maxAllocateRetries = 5

// ErrSubnetFull is returned when an org's subnet has no free host address
// left to allocate.
var ErrSubnetFull = errors.New("ipam: no available IPs")

// Service allocates virtual IPs inside an organization's CIDR subnet.
type Service struct {
	store store.Store
}

func New(s store.Store) *Service {
	return &Service{store: s}
}

// EnsureIP returns userID's existing virtual IP in orgID, allocating one
// from org.Subnet if none exists yet. Invariant: after a successful call,
// store.GetMapping(userID, orgID) == the returned IP, and the IP lies
// inside org.Subnet (see spec.md §4.8).
func (s *Service) EnsureIP(ctx context.Context, userID, orgID int64) (string, error) {
	org, err := s.store.FindOrgByID(ctx, orgID)
	if err != nil {
		return "", fmt.Errorf("ensure ip: %w", err)
	}

	for attempt := 0; attempt < maxAllocateRetries; attempt++ {
		if ip, err := s.store.GetMapping(ctx, userID, orgID); err != nil {
			return "", fmt.Errorf("ensure ip: %w", err)
		} else if ip != "" {
			return ip, nil
		}

		used, err := s.store.ListUsedIPs(ctx, orgID)
		if err != nil {
			return "", fmt.Errorf("ensure ip: %w", err)
		}
		candidate := subnet.NextFreeHost(org.Subnet, used)
		if candidate == "" {
			return "", ErrSubnetFull
		}

		err = s.store.InsertMapping(ctx, userID, orgID, candidate)
		switch {
		case err == nil:
			return candidate, nil
		case errors.Is(err, store.ErrConflict):
			continue // another actor took this (user,org) or this IP; retry
		default:
			return "", fmt.Errorf("ensure ip: %w", err)
		}
	}
	return "", fmt.Errorf("ensure ip: exhausted %d retries", maxAllocateRetries)
}
