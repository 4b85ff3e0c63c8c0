package deduplication

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/prlibrary/matching/internal/keywords"
	"github.com/prlibrary/matching/internal/types"
)

var sharpS = strings.NewReplacer("ß", "ss", "ẞ", "ss")

// NormalizeName lowercases s, folds accents and collapses every run of
// non-alphanumeric characters into a single dash.
func NormalizeName(s string) string {
	// transform chains are stateful, so build one per call
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, sharpS.Replace(s))
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ContactKey groups contacts by primary email, falling back to their name.
// It returns "" when the contact has neither.
func ContactKey(d types.ContactData) string {
	if email := strings.ToLower(strings.TrimSpace(d.PrimaryEmail())); email != "" {
		return email
	}
	name := strings.TrimSpace(d.FirstName + " " + d.LastName)
	if name == "" {
		name = d.DisplayName
	}
	return NormalizeName(name)
}

// CompanyKey groups companies by their name without legal form
func CompanyKey(d types.ContactData) string {
	name := keywords.StripLegalSuffix(strings.TrimSpace(d.Name()))
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// PublicationKey groups publications by website host, falling back to the
// normalized title.
func PublicationKey(p *types.Publication) string {
	if host := websiteHost(p.Website); host != "" {
		return host
	}
	return NormalizeName(p.Title)
}

func websiteHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// emailDomain returns the lowercased domain of an address
func emailDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(address[at+1:]))
}
