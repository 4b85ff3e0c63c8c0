package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prlibrary/matching/internal/types"
)

// UpsertOrganization creates an organization or updates its name and type
func (s *SQLiteStorage) UpsertOrganization(ctx context.Context, org *types.Organization) error {
	if err := org.Validate(); err != nil {
		return fmt.Errorf("invalid organization: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, type) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, type = excluded.type
	`, org.ID, org.Name, string(org.Type))
	if err != nil {
		return fmt.Errorf("failed to upsert organization %s: %w", org.ID, err)
	}
	return nil
}

// ListOrganizations returns organizations ordered by id. A non-empty ids
// list restricts the result to those organizations.
func (s *SQLiteStorage) ListOrganizations(ctx context.Context, ids []string) ([]*types.Organization, error) {
	query := `SELECT id, name, type FROM organizations`
	args := make([]interface{}, 0, len(ids))
	if len(ids) > 0 {
		query += ` WHERE id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*types.Organization
	for rows.Next() {
		var org types.Organization
		var orgType string
		if err := rows.Scan(&org.ID, &org.Name, &orgType); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		org.Type = types.OrganizationType(orgType)
		orgs = append(orgs, &org)
	}
	return orgs, rows.Err()
}

// UpsertContact stores a tenant contact
func (s *SQLiteStorage) UpsertContact(ctx context.Context, c *types.Contact) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid contact: %w", err)
	}
	return s.upsertOwned(ctx, "contacts", c.OrganizationID, c.ID, c)
}

// ListContacts returns an organization's contacts ordered by id
func (s *SQLiteStorage) ListContacts(ctx context.Context, orgID string) ([]*types.Contact, error) {
	return listOwned[types.Contact](ctx, s, "contacts", orgID)
}

// GetContact retrieves one contact of an organization
func (s *SQLiteStorage) GetContact(ctx context.Context, orgID, id string) (*types.Contact, error) {
	return getOwned[types.Contact](ctx, s, "contacts", orgID, id)
}

// UpsertCompany stores a tenant company
func (s *SQLiteStorage) UpsertCompany(ctx context.Context, c *types.Company) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid company: %w", err)
	}
	return s.upsertOwned(ctx, "companies", c.OrganizationID, c.ID, c)
}

// ListCompanies returns an organization's companies ordered by id
func (s *SQLiteStorage) ListCompanies(ctx context.Context, orgID string) ([]*types.Company, error) {
	return listOwned[types.Company](ctx, s, "companies", orgID)
}

// GetCompany retrieves one company of an organization
func (s *SQLiteStorage) GetCompany(ctx context.Context, orgID, id string) (*types.Company, error) {
	return getOwned[types.Company](ctx, s, "companies", orgID, id)
}

// UpsertPublication stores a tenant publication
func (s *SQLiteStorage) UpsertPublication(ctx context.Context, p *types.Publication) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid publication: %w", err)
	}
	return s.upsertOwned(ctx, "publications", p.OrganizationID, p.ID, p)
}

// ListPublications returns an organization's publications ordered by id
func (s *SQLiteStorage) ListPublications(ctx context.Context, orgID string) ([]*types.Publication, error) {
	return listOwned[types.Publication](ctx, s, "publications", orgID)
}

// GetPublication retrieves one publication of an organization
func (s *SQLiteStorage) GetPublication(ctx context.Context, orgID, id string) (*types.Publication, error) {
	return getOwned[types.Publication](ctx, s, "publications", orgID, id)
}

// table is always one of the constant names above
func (s *SQLiteStorage) upsertOwned(ctx context.Context, table, orgID, id string, record interface{}) error {
	data, err := marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", table, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (organization_id, id, data) VALUES (?, ?, ?)
		ON CONFLICT(organization_id, id) DO UPDATE SET data = excluded.data
	`, table)
	if _, err := s.db.ExecContext(ctx, query, orgID, id, data); err != nil {
		return fmt.Errorf("failed to upsert %s record %s: %w", table, id, err)
	}
	return nil
}

func listOwned[T any](ctx context.Context, s *SQLiteStorage, table, orgID string) ([]*T, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE organization_id = ? ORDER BY id`, table)
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		var rec T
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", table, err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func getOwned[T any](ctx context.Context, s *SQLiteStorage, table, orgID, id string) (*T, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE organization_id = ? AND id = ?`, table)
	var raw string
	err := s.db.QueryRowContext(ctx, query, orgID, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s record %s/%s: %w", table, orgID, id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s record: %w", table, err)
	}
	var rec T
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s row: %w", table, err)
	}
	return &rec, nil
}
