package deduplication

import (
	"context"
	"fmt"
	"strings"

	"github.com/prlibrary/matching/internal/types"
)

// defaultFieldThreshold is the share of agreeing variants needed to
// overwrite a field missing from fieldThresholds
const defaultFieldThreshold = 0.9

// fieldThresholds are the super-majorities that let rescanned variants
// overwrite a library field. Names only change on unanimous agreement.
var fieldThresholds = map[string]float64{
	"name":         1.0,
	"firstName":    1.0,
	"lastName":     1.0,
	"officialName": 1.0,
	"tradingName":  1.0,
	"email":        0.9,
	"phone":        0.9,
	"website":      0.8,
	"logo":         0.85,
	"photoUrl":     0.85,
}

// FieldThreshold returns the auto-update threshold for field
func FieldThreshold(field string) float64 {
	if t, ok := fieldThresholds[field]; ok {
		return t
	}
	return defaultFieldThreshold
}

// fieldSpec reads and writes one scalar field of a payload
type fieldSpec struct {
	name string
	get  func(d *types.ContactData) string
	set  func(d *types.ContactData, v string)
}

var (
	displayNameField = fieldSpec{"name",
		func(d *types.ContactData) string { return d.DisplayName },
		func(d *types.ContactData, v string) { d.DisplayName = v }}
	websiteField = fieldSpec{"website",
		func(d *types.ContactData) string { return d.Website },
		func(d *types.ContactData, v string) { d.Website = v }}
	emailField = fieldSpec{"email",
		func(d *types.ContactData) string { return d.PrimaryEmail() },
		setPrimaryEmail}
	phoneField = fieldSpec{"phone",
		func(d *types.ContactData) string { return d.PrimaryPhone() },
		setPrimaryPhone}
)

var contactFields = []fieldSpec{
	{"firstName",
		func(d *types.ContactData) string { return d.FirstName },
		func(d *types.ContactData, v string) { d.FirstName = v }},
	{"lastName",
		func(d *types.ContactData) string { return d.LastName },
		func(d *types.ContactData, v string) { d.LastName = v }},
	emailField,
	phoneField,
	{"position",
		func(d *types.ContactData) string { return d.Position },
		func(d *types.ContactData, v string) { d.Position = v }},
	{"department",
		func(d *types.ContactData) string { return d.Department },
		func(d *types.ContactData, v string) { d.Department = v }},
	{"companyName",
		func(d *types.ContactData) string { return d.CompanyName },
		func(d *types.ContactData, v string) { d.CompanyName = v }},
	websiteField,
	{"photoUrl",
		func(d *types.ContactData) string { return d.PhotoURL },
		func(d *types.ContactData, v string) { d.PhotoURL = v }},
}

var companyFields = []fieldSpec{
	displayNameField,
	{"officialName",
		func(d *types.ContactData) string { return d.OfficialName },
		func(d *types.ContactData, v string) { d.OfficialName = v }},
	{"tradingName",
		func(d *types.ContactData) string { return d.TradingName },
		func(d *types.ContactData, v string) { d.TradingName = v }},
	websiteField,
	emailField,
	phoneField,
	{"logo",
		func(d *types.ContactData) string { return d.PhotoURL },
		func(d *types.ContactData, v string) { d.PhotoURL = v }},
}

var publicationFields = []fieldSpec{displayNameField, websiteField}

func fieldsFor(entityType types.EntityType) []fieldSpec {
	switch entityType {
	case types.EntityContact:
		return contactFields
	case types.EntityCompany:
		return companyFields
	case types.EntityPublication:
		return publicationFields
	}
	return nil
}

func lookupField(entityType types.EntityType, name string) (fieldSpec, bool) {
	for _, f := range fieldsFor(entityType) {
		if f.name == name {
			return f, true
		}
	}
	return fieldSpec{}, false
}

// FieldNames lists the fields of entityType that imports can override and
// rescans reconcile
func FieldNames(entityType types.EntityType) []string {
	specs := fieldsFor(entityType)
	names := make([]string, 0, len(specs))
	for _, f := range specs {
		names = append(names, f.name)
	}
	return names
}

func setPrimaryEmail(d *types.ContactData, v string) {
	for i := range d.Emails {
		if d.Emails[i].Primary {
			d.Emails[i].Address = v
			return
		}
	}
	if len(d.Emails) > 0 {
		d.Emails[0].Address = v
		return
	}
	d.Emails = []types.Email{{Address: v, Primary: true}}
}

func setPrimaryPhone(d *types.ContactData, v string) {
	for i := range d.Phones {
		if d.Phones[i].Primary {
			d.Phones[i].Number = v
			return
		}
	}
	if len(d.Phones) > 0 {
		d.Phones[0].Number = v
		return
	}
	d.Phones = []types.Phone{{Number: v, Primary: true}}
}

// normalizeValue is the form field values are compared in
func normalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// LibraryRecords reads and writes the shared library's records
type LibraryRecords interface {
	GetContact(ctx context.Context, orgID, id string) (*types.Contact, error)
	UpsertContact(ctx context.Context, c *types.Contact) error
	GetCompany(ctx context.Context, orgID, id string) (*types.Company, error)
	UpsertCompany(ctx context.Context, c *types.Company) error
	ListCompanies(ctx context.Context, orgID string) ([]*types.Company, error)
	GetPublication(ctx context.Context, orgID, id string) (*types.Publication, error)
	UpsertPublication(ctx context.Context, p *types.Publication) error
	ListPublications(ctx context.Context, orgID string) ([]*types.Publication, error)
}

// libraryRecord is a library entity reduced to the payload the field table
// operates on. Publications map their title to DisplayName.
type libraryRecord struct {
	entityType  types.EntityType
	data        types.ContactData
	info        *types.LibraryInfo
	contact     *types.Contact
	company     *types.Company
	publication *types.Publication
}

func loadLibraryRecord(ctx context.Context, store LibraryRecords, orgID string, entityType types.EntityType, id string) (*libraryRecord, error) {
	rec := &libraryRecord{entityType: entityType}
	switch entityType {
	case types.EntityContact:
		c, err := store.GetContact(ctx, orgID, id)
		if err != nil {
			return nil, err
		}
		rec.contact, rec.data, rec.info = c, c.Data, c.Library
	case types.EntityCompany:
		c, err := store.GetCompany(ctx, orgID, id)
		if err != nil {
			return nil, err
		}
		rec.company, rec.data, rec.info = c, c.Data, c.Library
	case types.EntityPublication:
		p, err := store.GetPublication(ctx, orgID, id)
		if err != nil {
			return nil, err
		}
		rec.publication, rec.info = p, p.Library
		rec.data = types.ContactData{DisplayName: p.Title, Website: p.Website}
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
	if rec.info == nil {
		rec.info = &types.LibraryInfo{}
	}
	return rec, nil
}

func (r *libraryRecord) save(ctx context.Context, store LibraryRecords) error {
	switch r.entityType {
	case types.EntityContact:
		r.contact.Data, r.contact.Library = r.data, r.info
		return store.UpsertContact(ctx, r.contact)
	case types.EntityCompany:
		r.company.Data, r.company.Library = r.data, r.info
		return store.UpsertCompany(ctx, r.company)
	default:
		r.publication.Title, r.publication.Website = r.data.DisplayName, r.data.Website
		r.publication.Library = r.info
		return store.UpsertPublication(ctx, r.publication)
	}
}

func (r *libraryRecord) name() string {
	return r.data.Name()
}
