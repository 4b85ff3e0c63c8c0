package types

import (
	"fmt"
	"strings"
)

// ReferencePrefix marks contacts that are local references to records of the
// shared library rather than tenant-owned data.
const ReferencePrefix = "local-ref-"

// OrganizationType distinguishes tenants from the organization owning the
// shared library
type OrganizationType string

// OrgTypeSuperAdmin owns the shared library records. Scans never read it.
const OrgTypeSuperAdmin OrganizationType = "super_admin"

// Organization is a tenant contributing records to the library
type Organization struct {
	ID   string           `json:"id" yaml:"id"`
	Name string           `json:"name" yaml:"name"`
	Type OrganizationType `json:"type,omitempty" yaml:"type,omitempty"`
}

// IsLibrary reports whether org owns the shared library
func (o *Organization) IsLibrary() bool {
	return o.Type == OrgTypeSuperAdmin
}

// Contact is a tenant-owned journalist or person record
type Contact struct {
	ID             string      `json:"id" yaml:"id"`
	OrganizationID string      `json:"organizationId" yaml:"organizationId"`
	Data           ContactData `json:"data" yaml:"data"`
	IsReference    bool        `json:"isReference,omitempty" yaml:"isReference"`

	// Library records only
	PublicationIDs []string     `json:"publicationIds,omitempty" yaml:"publicationIds,omitempty"`
	Library        *LibraryInfo `json:"library,omitempty" yaml:"-"`
}

// IsLibraryReference reports whether the contact only points at a shared
// library record.
func (c *Contact) IsLibraryReference() bool {
	return c.IsReference || strings.HasPrefix(c.ID, ReferencePrefix)
}

// Company is a tenant-owned company record
type Company struct {
	ID             string       `json:"id" yaml:"id"`
	OrganizationID string       `json:"organizationId" yaml:"organizationId"`
	Data           ContactData  `json:"data" yaml:"data"`
	Library        *LibraryInfo `json:"library,omitempty" yaml:"-"`
}

// Publication is a tenant-owned media outlet record. Website and RSSFeedURL
// are the legacy single-field monitoring sources.
type Publication struct {
	ID             string                       `json:"id" yaml:"id"`
	OrganizationID string                       `json:"organizationId" yaml:"organizationId"`
	Title          string                       `json:"title" yaml:"title"`
	Website        string                       `json:"website,omitempty" yaml:"website"`
	RSSFeedURL     string                       `json:"rssFeedUrl,omitempty" yaml:"rssFeedUrl"`
	Monitoring     *PublicationMonitoringConfig `json:"monitoring,omitempty" yaml:"monitoring"`

	// Library records only
	CompanyID     string       `json:"companyId,omitempty" yaml:"companyId,omitempty"`
	PublisherName string       `json:"publisherName,omitempty" yaml:"publisherName,omitempty"`
	Library       *LibraryInfo `json:"library,omitempty" yaml:"-"`
}

// Validate checks if the organization has valid field values
func (o *Organization) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("organization id is required")
	}
	return nil
}

func validateOwned(id, orgID string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if orgID == "" {
		return fmt.Errorf("organization_id is required")
	}
	return nil
}

// Validate checks if the contact has valid field values
func (c *Contact) Validate() error { return validateOwned(c.ID, c.OrganizationID) }

// Validate checks if the company has valid field values
func (c *Company) Validate() error { return validateOwned(c.ID, c.OrganizationID) }

// Validate checks if the publication has valid field values
func (p *Publication) Validate() error {
	if err := validateOwned(p.ID, p.OrganizationID); err != nil {
		return err
	}
	if p.Monitoring != nil {
		return p.Monitoring.Validate()
	}
	return nil
}
