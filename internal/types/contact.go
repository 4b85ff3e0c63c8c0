package types

import "strings"

// ContactData is the payload shared by variants and merged records. Company
// variants populate the name and website fields plus OfficialName/TradingName;
// publication variants populate DisplayName and Website.
type ContactData struct {
	DisplayName     string          `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	FirstName       string          `json:"firstName,omitempty" yaml:"firstName,omitempty"`
	LastName        string          `json:"lastName,omitempty" yaml:"lastName,omitempty"`
	Emails          []Email         `json:"emails,omitempty" yaml:"emails,omitempty"`
	Phones          []Phone         `json:"phones,omitempty" yaml:"phones,omitempty"`
	Position        string          `json:"position,omitempty" yaml:"position,omitempty"`
	Department      string          `json:"department,omitempty" yaml:"department,omitempty"`
	CompanyName     string          `json:"companyName,omitempty" yaml:"companyName,omitempty"`
	CompanyID       string          `json:"companyId,omitempty" yaml:"companyId,omitempty"`
	Website         string          `json:"website,omitempty" yaml:"website,omitempty"`
	PhotoURL        string          `json:"photoUrl,omitempty" yaml:"photoUrl,omitempty"`
	Beats           []string        `json:"beats,omitempty" yaml:"beats,omitempty"`
	MediaTypes      []string        `json:"mediaTypes,omitempty" yaml:"mediaTypes,omitempty"`
	SocialProfiles  []SocialProfile `json:"socialProfiles,omitempty" yaml:"socialProfiles,omitempty"`
	HasMediaProfile bool            `json:"hasMediaProfile,omitempty" yaml:"hasMediaProfile,omitempty"`
	Publications    []string        `json:"publications,omitempty" yaml:"publications,omitempty"` // outlet names
	OfficialName    string          `json:"officialName,omitempty" yaml:"officialName,omitempty"`
	TradingName     string          `json:"tradingName,omitempty" yaml:"tradingName,omitempty"`
}

// Email is one address of a contact
type Email struct {
	Address string `json:"email" yaml:"email"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Primary bool   `json:"isPrimary,omitempty" yaml:"isPrimary,omitempty"`
}

// Phone is one number of a contact
type Phone struct {
	Number  string `json:"number" yaml:"number"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Primary bool   `json:"isPrimary,omitempty" yaml:"isPrimary,omitempty"`
}

// SocialProfile is a link to a profile on a social platform
type SocialProfile struct {
	Platform string `json:"platform" yaml:"platform"`
	URL      string `json:"url" yaml:"url"`
}

// Name returns the best human-readable name for the payload.
func (c *ContactData) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// PrimaryEmail returns the address flagged primary, else the first one.
func (c *ContactData) PrimaryEmail() string {
	for _, e := range c.Emails {
		if e.Primary && strings.TrimSpace(e.Address) != "" {
			return e.Address
		}
	}
	for _, e := range c.Emails {
		if strings.TrimSpace(e.Address) != "" {
			return e.Address
		}
	}
	return ""
}

// PrimaryPhone returns the number flagged primary, else the first one.
func (c *ContactData) PrimaryPhone() string {
	for _, p := range c.Phones {
		if p.Primary && p.Number != "" {
			return p.Number
		}
	}
	if len(c.Phones) > 0 {
		return c.Phones[0].Number
	}
	return ""
}

// IsEmpty reports whether the payload carries no identifying data at all.
func (c *ContactData) IsEmpty() bool {
	return c.Name() == "" && len(c.Emails) == 0 && len(c.Phones) == 0 && c.Website == ""
}

// Clone returns a deep copy so callers can mutate slices freely.
func (c ContactData) Clone() ContactData {
	out := c
	out.Emails = append([]Email(nil), c.Emails...)
	out.Phones = append([]Phone(nil), c.Phones...)
	out.Beats = append([]string(nil), c.Beats...)
	out.MediaTypes = append([]string(nil), c.MediaTypes...)
	out.SocialProfiles = append([]SocialProfile(nil), c.SocialProfiles...)
	out.Publications = append([]string(nil), c.Publications...)
	return out
}
