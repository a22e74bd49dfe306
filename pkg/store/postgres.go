package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"

	"github.com/signalhub/hub/pkg/model"
)

// pqUniqueViolation is the SQLSTATE Postgres returns for a unique
// constraint violation.
const pqUniqueViolation = "23505"

// Postgres is the production Store, backed by the schema the (out of
// scope) migration tool maintains: user, organization, organization_user,
// virtual_ip_mapping, connection_status — see SPEC_FULL.md §3 and
// original_source/app/models.py.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to dsn (a libpq connection string) using the lib/pq driver.
func Open(dsn string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "connect to postgres")
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) FindUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := p.db.GetContext(ctx, &u,
		`SELECT id, email, is_active FROM "user" WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return &u, nil
}

func (p *Postgres) FindOrgByID(ctx context.Context, id int64) (*model.Organization, error) {
	var o model.Organization
	err := p.db.GetContext(ctx, &o,
		`SELECT id, name, subnet FROM organization WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find org %d: %w", id, err)
	}
	return &o, nil
}

func (p *Postgres) IsMember(ctx context.Context, userID, orgID int64) (bool, error) {
	var n int
	err := p.db.GetContext(ctx, &n,
		`SELECT count(*) FROM organization_user WHERE user_id = $1 AND org_id = $2`,
		userID, orgID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) ListUserOrgs(ctx context.Context, userID int64) ([]model.Organization, error) {
	var orgs []model.Organization
	err := p.db.SelectContext(ctx, &orgs, `
		SELECT o.id, o.name, o.subnet
		FROM organization o
		JOIN organization_user ou ON ou.org_id = o.id
		WHERE ou.user_id = $1
		ORDER BY o.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orgs for user %d: %w", userID, err)
	}
	return orgs, nil
}

func (p *Postgres) GetMapping(ctx context.Context, userID, orgID int64) (string, error) {
	var ip string
	err := p.db.GetContext(ctx, &ip,
		`SELECT virtual_ip FROM virtual_ip_mapping WHERE user_id = $1 AND org_id = $2`,
		userID, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get mapping for user %d org %d: %w", userID, orgID, err)
	}
	return ip, nil
}

func (p *Postgres) ListUsedIPs(ctx context.Context, orgID int64) (map[string]struct{}, error) {
	var ips []string
	err := p.db.SelectContext(ctx, &ips,
		`SELECT virtual_ip FROM virtual_ip_mapping WHERE org_id = $1`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list used ips for org %d: %w", orgID, err)
	}
	out := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		out[ip] = struct{}{}
	}
	return out, nil
}

func (p *Postgres) InsertMapping(ctx context.Context, userID, orgID int64, ip string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO virtual_ip_mapping (user_id, org_id, virtual_ip)
		VALUES ($1, $2, $3)`, userID, orgID, ip)
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrConflict
	}
	return fmt.Errorf("insert mapping for user %d org %d: %w", userID, orgID, err)
}

func (p *Postgres) CreateOrg(ctx context.Context, name, subnet string, creatorUserID int64) (*model.Organization, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create org: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var org model.Organization
	err = tx.GetContext(ctx, &org, `
		INSERT INTO organization (name, subnet) VALUES ($1, $2)
		RETURNING id, name, subnet`, name, subnet)
	if err != nil {
		return nil, fmt.Errorf("create org: insert: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_user (user_id, org_id) VALUES ($1, $2)`,
		creatorUserID, org.ID)
	if err != nil {
		return nil, fmt.Errorf("create org: add creator: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create org: commit: %w", err)
	}
	return &org, nil
}

func (p *Postgres) AddMember(ctx context.Context, userID, orgID int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO organization_user (user_id, org_id) VALUES ($1, $2)`,
		userID, orgID)
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrAlreadyMember
	}
	return fmt.Errorf("add member: %w", err)
}

func (p *Postgres) ListOrgMembers(ctx context.Context, orgID int64) ([]model.User, error) {
	var users []model.User
	err := p.db.SelectContext(ctx, &users, `
		SELECT u.id, u.email, u.is_active
		FROM "user" u
		JOIN organization_user ou ON ou.user_id = u.id
		WHERE ou.org_id = $1
		ORDER BY u.id ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list org members for org %d: %w", orgID, err)
	}
	return users, nil
}

func (p *Postgres) ListMappings(ctx context.Context, orgID int64) ([]model.VirtualIPMapping, error) {
	var mappings []model.VirtualIPMapping
	err := p.db.SelectContext(ctx, &mappings, `
		SELECT user_id, org_id, virtual_ip FROM virtual_ip_mapping
		WHERE org_id = $1
		ORDER BY user_id ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list mappings for org %d: %w", orgID, err)
	}
	return mappings, nil
}

func (p *Postgres) RecordConnectionEvent(ctx context.Context, ev model.ConnectionEvent) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO connection_status
			(user_id, org_id, peer_id, virtual_ip, status, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.UserID, ev.OrgID, ev.PeerID, ev.VirtualIP, ev.Event, ev.At)
	if err != nil {
		return fmt.Errorf("record connection event: %w", err)
	}
	return nil
}
