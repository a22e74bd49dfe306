package store

import (
	"context"
	"sort"
	"sync"

	"github.com/signalhub/hub/pkg/model"
)

// Memory is an in-process Store used by tests and by single-binary demo
// deployments that don't need durability. All operations are guarded by a
// single mutex, giving read-your-writes for free.
type Memory struct {
	mu sync.Mutex

	nextOrgID int64

	users       map[int64]model.User
	orgs        map[int64]model.Organization
	memberships map[int64]map[int64]bool  // userID -> orgID -> true
	mappings    map[int64]map[int64]string // orgID -> userID -> ip
	usedIPs     map[int64]map[string]bool  // orgID -> ip -> true
	events      []model.ConnectionEvent
}

func NewMemory() *Memory {
	return &Memory{
		users:       map[int64]model.User{},
		orgs:        map[int64]model.Organization{},
		memberships: map[int64]map[int64]bool{},
		mappings:    map[int64]map[int64]string{},
		usedIPs:     map[int64]map[string]bool{},
	}
}

// PutUser and PutOrg are test/fixture helpers, not part of the Store port —
// the port only reads users/orgs (they are populated by the out-of-scope
// registration flow). Membership is seeded through AddMember below, which
// is part of the port.
func (m *Memory) PutUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) PutOrg(o model.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[o.ID] = o
}

func (m *Memory) FindUserByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) FindOrgByID(_ context.Context, id int64) (*model.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *Memory) IsMember(_ context.Context, userID, orgID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memberships[userID][orgID], nil
}

func (m *Memory) ListUserOrgs(_ context.Context, userID int64) ([]model.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orgs []model.Organization
	for orgID := range m.memberships[userID] {
		if o, ok := m.orgs[orgID]; ok {
			orgs = append(orgs, o)
		}
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].ID < orgs[j].ID })
	return orgs, nil
}

func (m *Memory) GetMapping(_ context.Context, userID, orgID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mappings[orgID][userID], nil
}

func (m *Memory) ListUsedIPs(_ context.Context, orgID int64) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.usedIPs[orgID]))
	for ip := range m.usedIPs[orgID] {
		out[ip] = struct{}{}
	}
	return out, nil
}

func (m *Memory) InsertMapping(_ context.Context, userID, orgID int64, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mappings[orgID] == nil {
		m.mappings[orgID] = map[int64]string{}
	}
	if _, exists := m.mappings[orgID][userID]; exists {
		return ErrConflict
	}
	if m.usedIPs[orgID] == nil {
		m.usedIPs[orgID] = map[string]bool{}
	}
	if m.usedIPs[orgID][ip] {
		return ErrConflict
	}
	m.mappings[orgID][userID] = ip
	m.usedIPs[orgID][ip] = true
	return nil
}

func (m *Memory) CreateOrg(_ context.Context, name, subnet string, creatorUserID int64) (*model.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOrgID++
	org := model.Organization{ID: m.nextOrgID, Name: name, Subnet: subnet}
	m.orgs[org.ID] = org
	if m.memberships[creatorUserID] == nil {
		m.memberships[creatorUserID] = map[int64]bool{}
	}
	m.memberships[creatorUserID][org.ID] = true
	return &org, nil
}

func (m *Memory) AddMember(_ context.Context, userID, orgID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memberships[userID][orgID] {
		return ErrAlreadyMember
	}
	if m.memberships[userID] == nil {
		m.memberships[userID] = map[int64]bool{}
	}
	m.memberships[userID][orgID] = true
	return nil
}

func (m *Memory) ListOrgMembers(_ context.Context, orgID int64) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for userID, orgs := range m.memberships {
		if orgs[orgID] {
			if u, ok := m.users[userID]; ok {
				out = append(out, u)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListMappings(_ context.Context, orgID int64) ([]model.VirtualIPMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.VirtualIPMapping
	for userID, ip := range m.mappings[orgID] {
		out = append(out, model.VirtualIPMapping{UserID: userID, OrgID: orgID, VirtualIP: ip})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) RecordConnectionEvent(_ context.Context, ev model.ConnectionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded connection-audit trail; test-only.
func (m *Memory) Events() []model.ConnectionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ConnectionEvent, len(m.events))
	copy(out, m.events)
	return out
}
