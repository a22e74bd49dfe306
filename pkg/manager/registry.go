package manager

import "sync"

// Registry is the Presence Registry (C4): a process-wide mapping from
// org_id to the ordered set of its live Sessions. A Session is present in
// the Registry if and only if it has completed register and not yet torn
// down (spec.md §3, P3).
//
// All mutations and reads take the same mutex; Snapshot returns a stable
// copy so callers can iterate and send without holding the lock — a slow
// recipient must never block the registry (spec.md §5).
type Registry struct {
	mu    sync.Mutex
	byOrg map[int64][]*Session
}

func NewRegistry() *Registry {
	return &Registry{byOrg: map[int64][]*Session{}}
}

// Add inserts s into the registry under s.OrgID. Insertion order is
// preserved within an org (used only for deterministic tests).
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byOrg[s.OrgID] = append(r.byOrg[s.OrgID], s)
}

// Remove deletes s from the registry. A no-op if s isn't present, so
// teardown stays idempotent (P7).
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := r.byOrg[s.OrgID]
	for i, cur := range sessions {
		if cur == s {
			r.byOrg[s.OrgID] = append(sessions[:i:i], sessions[i+1:]...)
			break
		}
	}
	if len(r.byOrg[s.OrgID]) == 0 {
		delete(r.byOrg, s.OrgID)
	}
}

// Snapshot returns a stable copy of the live sessions in orgID, in
// insertion order.
func (r *Registry) Snapshot(orgID int64) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := r.byOrg[orgID]
	out := make([]*Session, len(sessions))
	copy(out, sessions)
	return out
}

// Count returns the number of live sessions in orgID.
func (r *Registry) Count(orgID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOrg[orgID])
}

// Total returns the number of live sessions across every org; backs the
// signalhub_sessions_registered gauge (C9).
func (r *Registry) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, sessions := range r.byOrg {
		n += len(sessions)
	}
	return n
}
