package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalhub/hub/pkg/model"
)

func TestMemory_CreateOrgAddsCreatorAsMember(t *testing.T) {
	m := NewMemory()
	m.PutUser(model.User{ID: 1, Email: "alice@example.com", IsActive: true})

	org, err := m.CreateOrg(context.Background(), "Acme", "10.0.0.0/24", 1)
	require.NoError(t, err)
	assert.NotZero(t, org.ID)

	isMember, err := m.IsMember(context.Background(), 1, org.ID)
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestMemory_CreateOrgAssignsDistinctIDs(t *testing.T) {
	m := NewMemory()
	m.PutUser(model.User{ID: 1, Email: "alice@example.com", IsActive: true})

	org1, err := m.CreateOrg(context.Background(), "Acme", "10.0.0.0/24", 1)
	require.NoError(t, err)
	org2, err := m.CreateOrg(context.Background(), "Globex", "10.0.1.0/24", 1)
	require.NoError(t, err)

	assert.NotEqual(t, org1.ID, org2.ID)
}

func TestMemory_AddMember(t *testing.T) {
	m := NewMemory()
	m.PutUser(model.User{ID: 1, Email: "alice@example.com", IsActive: true})
	m.PutUser(model.User{ID: 2, Email: "bob@example.com", IsActive: true})
	org, err := m.CreateOrg(context.Background(), "Acme", "10.0.0.0/24", 1)
	require.NoError(t, err)

	require.NoError(t, m.AddMember(context.Background(), 2, org.ID))

	isMember, err := m.IsMember(context.Background(), 2, org.ID)
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestMemory_AddMemberTwiceFails(t *testing.T) {
	m := NewMemory()
	m.PutUser(model.User{ID: 1, Email: "alice@example.com", IsActive: true})
	org, err := m.CreateOrg(context.Background(), "Acme", "10.0.0.0/24", 1)
	require.NoError(t, err)

	err = m.AddMember(context.Background(), 1, org.ID)
	assert.ErrorIs(t, err, ErrAlreadyMember)
}

func TestMemory_ListOrgMembers(t *testing.T) {
	m := NewMemory()
	m.PutUser(model.User{ID: 1, Email: "alice@example.com", IsActive: true})
	m.PutUser(model.User{ID: 2, Email: "bob@example.com", IsActive: true})
	org, err := m.CreateOrg(context.Background(), "Acme", "10.0.0.0/24", 1)
	require.NoError(t, err)
	require.NoError(t, m.AddMember(context.Background(), 2, org.ID))

	members, err := m.ListOrgMembers(context.Background(), org.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, int64(1), members[0].ID)
	assert.Equal(t, int64(2), members[1].ID)
}

func TestMemory_InsertMappingRejectsDuplicateUser(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.InsertMapping(context.Background(), 1, 10, "10.0.0.1"))
	err := m.InsertMapping(context.Background(), 1, 10, "10.0.0.2")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemory_InsertMappingRejectsDuplicateIP(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.InsertMapping(context.Background(), 1, 10, "10.0.0.1"))
	err := m.InsertMapping(context.Background(), 2, 10, "10.0.0.1")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemory_ListMappings(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.InsertMapping(context.Background(), 1, 10, "10.0.0.1"))
	require.NoError(t, m.InsertMapping(context.Background(), 2, 10, "10.0.0.2"))

	mappings, err := m.ListMappings(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "10.0.0.1", mappings[0].VirtualIP)
}

func TestMemory_RecordConnectionEvent(t *testing.T) {
	m := NewMemory()
	ev := model.ConnectionEvent{UserID: 1, OrgID: 10, PeerID: "p1", VirtualIP: "10.0.0.1", Event: "connected"}
	require.NoError(t, m.RecordConnectionEvent(context.Background(), ev))

	events := m.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "connected", events[0].Event)
}

func TestMemory_FindNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.FindUserByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.FindOrgByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
