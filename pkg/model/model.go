// Package model holds the signaling hub's persistent and ephemeral data
// types: users, organizations, memberships, virtual-IP mappings, and the
// in-memory Session record a registered WebSocket connection carries.
package model

import "time"

// User is created by the (out of scope) registration flow; the core only
// reads it. An inactive user must not be able to establish a session.
type User struct {
	ID       int64  `db:"id"`
	Email    string `db:"email"`
	IsActive bool   `db:"is_active"`
}

// Organization groups agents under one IPv4 CIDR subnet.
type Organization struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Subnet string `db:"subnet"` // IPv4 CIDR, e.g. "10.0.0.0/24"
}

// Membership is the (user_id, org_id) many-to-many join row.
type Membership struct {
	UserID int64 `db:"user_id"`
	OrgID  int64 `db:"org_id"`
}

// VirtualIPMapping is the sticky (user_id, org_id) -> virtual IP assignment.
type VirtualIPMapping struct {
	UserID    int64  `db:"user_id"`
	OrgID     int64  `db:"org_id"`
	VirtualIP string `db:"virtual_ip"`
}

// ConnectionEvent is a best-effort audit record of a session registering or
// tearing down. It is never consulted to answer "who is live right now" —
// the Presence Registry is. See SPEC_FULL.md §3.
type ConnectionEvent struct {
	UserID    int64
	OrgID     int64
	PeerID    string
	VirtualIP string
	Event     string // "connected" or "disconnected" (a heartbeat timeout records "disconnected")
	At        time.Time
}

// PeerInfo is what one agent learns about another: wire shape for
// existing_peers, peer_online, and peer_offline.
type PeerInfo struct {
	PeerID     string `json:"peer_id"`
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	AgentID    string `json:"agent_id,omitempty"`
	PublicIP   string `json:"public_ip"`
	PublicPort int    `json:"public_port"`
	RelayIP    string `json:"relay_ip,omitempty"`
	RelayPort  int    `json:"relay_port,omitempty"`
	VirtualIP  string `json:"virtual_ip"`
}
