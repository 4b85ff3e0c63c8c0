package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/prlibrary/matching/internal/types"
)

// UpsertOrganization creates an organization or updates its name and type
func (s *PostgresStorage) UpsertOrganization(ctx context.Context, org *types.Organization) error {
	if err := org.Validate(); err != nil {
		return fmt.Errorf("invalid organization: %w", err)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO organizations (id, name, type) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type
	`, org.ID, org.Name, string(org.Type))
	if err != nil {
		return fmt.Errorf("failed to upsert organization %s: %w", org.ID, err)
	}
	return nil
}

// ListOrganizations returns organizations ordered by id, restricted to ids
// when it is non-empty
func (s *PostgresStorage) ListOrganizations(ctx context.Context, ids []string) ([]*types.Organization, error) {
	query := `SELECT id, name, type FROM organizations`
	args := []interface{}{}
	if len(ids) > 0 {
		query += ` WHERE id = ANY($1)`
		args = append(args, ids)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
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
func (s *PostgresStorage) UpsertContact(ctx context.Context, c *types.Contact) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid contact: %w", err)
	}
	return s.upsertOwned(ctx, "contacts", c.OrganizationID, c.ID, c)
}

// ListContacts returns an organization's contacts ordered by id
func (s *PostgresStorage) ListContacts(ctx context.Context, orgID string) ([]*types.Contact, error) {
	return listOwned[types.Contact](ctx, s, "contacts", orgID)
}

// GetContact retrieves one contact of an organization
func (s *PostgresStorage) GetContact(ctx context.Context, orgID, id string) (*types.Contact, error) {
	return getOwned[types.Contact](ctx, s, "contacts", orgID, id)
}

// UpsertCompany stores a tenant company
func (s *PostgresStorage) UpsertCompany(ctx context.Context, c *types.Company) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid company: %w", err)
	}
	return s.upsertOwned(ctx, "companies", c.OrganizationID, c.ID, c)
}

// ListCompanies returns an organization's companies ordered by id
func (s *PostgresStorage) ListCompanies(ctx context.Context, orgID string) ([]*types.Company, error) {
	return listOwned[types.Company](ctx, s, "companies", orgID)
}

// GetCompany retrieves one company of an organization
func (s *PostgresStorage) GetCompany(ctx context.Context, orgID, id string) (*types.Company, error) {
	return getOwned[types.Company](ctx, s, "companies", orgID, id)
}

// UpsertPublication stores a tenant publication
func (s *PostgresStorage) UpsertPublication(ctx context.Context, p *types.Publication) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid publication: %w", err)
	}
	return s.upsertOwned(ctx, "publications", p.OrganizationID, p.ID, p)
}

// ListPublications returns an organization's publications ordered by id
func (s *PostgresStorage) ListPublications(ctx context.Context, orgID string) ([]*types.Publication, error) {
	return listOwned[types.Publication](ctx, s, "publications", orgID)
}

// GetPublication retrieves one publication of an organization
func (s *PostgresStorage) GetPublication(ctx context.Context, orgID, id string) (*types.Publication, error) {
	return getOwned[types.Publication](ctx, s, "publications", orgID, id)
}

func (s *PostgresStorage) upsertOwned(ctx context.Context, table, orgID, id string, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", table, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (organization_id, id, data) VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, id) DO UPDATE SET data = EXCLUDED.data
	`, table)
	if _, err := s.pool.Exec(ctx, query, orgID, id, data); err != nil {
		return fmt.Errorf("failed to upsert %s record %s: %w", table, id, err)
	}
	return nil
}

func listOwned[T any](ctx context.Context, s *PostgresStorage, table, orgID string) ([]*T, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE organization_id = $1 ORDER BY id`, table), orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	return collectData[T](rows, table+" row")
}

func getOwned[T any](ctx context.Context, s *PostgresStorage, table, orgID, id string) (*T, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE organization_id = $1 AND id = $2`, table),
		orgID, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s record %s/%s: %w", table, orgID, id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s record: %w", table, err)
	}
	return decode[T](raw, table+" row")
}
