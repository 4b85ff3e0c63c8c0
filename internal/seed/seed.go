// Package seed loads tenant fixtures from YAML and writes them to storage.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/prlibrary/matching/internal/types"
)

// Fixtures is a set of organizations with the records they own
type Fixtures struct {
	Organizations []Organization `yaml:"organizations"`
}

// Organization is one tenant in a fixture file. Records inherit the
// organization's ID.
type Organization struct {
	ID           string                 `yaml:"id"`
	Name         string                 `yaml:"name"`
	Type         types.OrganizationType `yaml:"type"`
	Contacts     []types.Contact        `yaml:"contacts"`
	Companies    []types.Company        `yaml:"companies"`
	Publications []types.Publication    `yaml:"publications"`
}

// Result counts the records written by Apply
type Result struct {
	Organizations int `json:"organizations"`
	Contacts      int `json:"contacts"`
	Companies     int `json:"companies"`
	Publications  int `json:"publications"`
}

func (r Result) String() string {
	return fmt.Sprintf("%d organizations, %d contacts, %d companies, %d publications",
		r.Organizations, r.Contacts, r.Companies, r.Publications)
}

// Store receives the fixture records
type Store interface {
	UpsertOrganization(ctx context.Context, org *types.Organization) error
	UpsertContact(ctx context.Context, c *types.Contact) error
	UpsertCompany(ctx context.Context, c *types.Company) error
	UpsertPublication(ctx context.Context, p *types.Publication) error
}

// Load parses fixtures from r. Unknown keys are errors.
func Load(r io.Reader) (*Fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fx Fixtures
	if err := dec.Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	fx.inheritOrganizations()
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

// LoadFile parses the fixture file at path
func LoadFile(path string) (*Fixtures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func (fx *Fixtures) inheritOrganizations() {
	for i := range fx.Organizations {
		org := &fx.Organizations[i]
		for j := range org.Contacts {
			if org.Contacts[j].OrganizationID == "" {
				org.Contacts[j].OrganizationID = org.ID
			}
		}
		for j := range org.Companies {
			if org.Companies[j].OrganizationID == "" {
				org.Companies[j].OrganizationID = org.ID
			}
		}
		for j := range org.Publications {
			if org.Publications[j].OrganizationID == "" {
				org.Publications[j].OrganizationID = org.ID
			}
		}
	}
}

// Validate checks every record and rejects duplicate IDs
func (fx *Fixtures) Validate() error {
	orgs := make(map[string]struct{}, len(fx.Organizations))
	records := make(map[string]struct{})
	unique := func(kind, id string) error {
		key := kind + "/" + id
		if _, dup := records[key]; dup {
			return fmt.Errorf("duplicate %s id %q", kind, id)
		}
		records[key] = struct{}{}
		return nil
	}

	for i := range fx.Organizations {
		org := &fx.Organizations[i]
		if org.ID == "" {
			return fmt.Errorf("organization %d: id is required", i)
		}
		if _, dup := orgs[org.ID]; dup {
			return fmt.Errorf("duplicate organization id %q", org.ID)
		}
		orgs[org.ID] = struct{}{}
		if org.Type != "" && org.Type != types.OrgTypeSuperAdmin {
			return fmt.Errorf("organization %s: unknown type %q", org.ID, org.Type)
		}

		for j := range org.Contacts {
			c := &org.Contacts[j]
			if err := c.Validate(); err != nil {
				return fmt.Errorf("organization %s contact %d: %w", org.ID, j, err)
			}
			if err := unique("contact", c.ID); err != nil {
				return err
			}
		}
		for j := range org.Companies {
			c := &org.Companies[j]
			if err := c.Validate(); err != nil {
				return fmt.Errorf("organization %s company %d: %w", org.ID, j, err)
			}
			if err := unique("company", c.ID); err != nil {
				return err
			}
		}
		for j := range org.Publications {
			p := &org.Publications[j]
			if err := p.Validate(); err != nil {
				return fmt.Errorf("organization %s publication %d: %w", org.ID, j, err)
			}
			if err := unique("publication", p.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Apply upserts every fixture record, organizations first
func Apply(ctx context.Context, store Store, fx *Fixtures) (Result, error) {
	var res Result
	for i := range fx.Organizations {
		org := &fx.Organizations[i]
		if err := store.UpsertOrganization(ctx, &types.Organization{ID: org.ID, Name: org.Name, Type: org.Type}); err != nil {
			return res, fmt.Errorf("organization %s: %w", org.ID, err)
		}
		res.Organizations++

		for j := range org.Contacts {
			if err := store.UpsertContact(ctx, &org.Contacts[j]); err != nil {
				return res, fmt.Errorf("contact %s: %w", org.Contacts[j].ID, err)
			}
			res.Contacts++
		}
		for j := range org.Companies {
			if err := store.UpsertCompany(ctx, &org.Companies[j]); err != nil {
				return res, fmt.Errorf("company %s: %w", org.Companies[j].ID, err)
			}
			res.Companies++
		}
		for j := range org.Publications {
			if err := store.UpsertPublication(ctx, &org.Publications[j]); err != nil {
				return res, fmt.Errorf("publication %s: %w", org.Publications[j].ID, err)
			}
			res.Publications++
		}
	}
	return res, nil
}
