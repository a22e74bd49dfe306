// Package store defines the Persistence Port (C2) the signaling hub reads
// and writes through, plus a Postgres-backed implementation and an
// in-memory one for tests.
package store

import (
	"context"
	"errors"

	"github.com/signalhub/hub/pkg/model"
)

// ErrConflict is returned by InsertMapping when another caller has already
// taken the (org_id, virtual_ip) pair, or the (user_id, org_id) pair,
// concurrently. The caller retries with a refreshed used-IP set.
var ErrConflict = errors.New("store: mapping conflict")

// ErrNotFound is returned by the single-entity lookups when nothing matches.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyMember is returned by AddMember when userID is already a member
// of orgID (original_source/app/api/organizations.py's 400 "User is already
// a member of this organization").
var ErrAlreadyMember = errors.New("store: user is already a member of this organization")

// Store is the narrow capability surface the core consumes. Implementations
// must provide read-your-writes within one caller and enforce uniqueness of
// (user_id, org_id) and (org_id, virtual_ip).
type Store interface {
	FindUserByID(ctx context.Context, id int64) (*model.User, error)
	FindOrgByID(ctx context.Context, id int64) (*model.Organization, error)
	IsMember(ctx context.Context, userID, orgID int64) (bool, error)
	// ListUserOrgs returns the orgs userID belongs to, ordered by org id
	// ascending.
	ListUserOrgs(ctx context.Context, userID int64) ([]model.Organization, error)
	GetMapping(ctx context.Context, userID, orgID int64) (string, error) // "" if absent
	ListUsedIPs(ctx context.Context, orgID int64) (map[string]struct{}, error)
	InsertMapping(ctx context.Context, userID, orgID int64, ip string) error

	// RecordConnectionEvent persists a best-effort audit row (SPEC_FULL.md
	// §3). Implementations must not block the signaling path on failure;
	// callers treat an error as log-and-continue.
	RecordConnectionEvent(ctx context.Context, ev model.ConnectionEvent) error

	// The following four back the HTTP control-plane (C10,
	// SPEC_FULL.md §4.10), grounded on
	// original_source/app/api/organizations.py and
	// original_source/app/api/virtual_ip.py.

	// CreateOrg creates a new organization and adds creatorUserID as its
	// first member, atomically from the caller's point of view.
	CreateOrg(ctx context.Context, name, subnet string, creatorUserID int64) (*model.Organization, error)
	// AddMember adds userID to orgID, or ErrAlreadyMember if already
	// present.
	AddMember(ctx context.Context, userID, orgID int64) error
	// ListOrgMembers returns every user belonging to orgID.
	ListOrgMembers(ctx context.Context, orgID int64) ([]model.User, error)
	// ListMappings returns every (user, ip) pair allocated in orgID.
	ListMappings(ctx context.Context, orgID int64) ([]model.VirtualIPMapping, error)
}
