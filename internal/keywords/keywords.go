// Package keywords derives name keywords from company records and decides
// whether an article can be attributed to a company without human review.
//
// Everything here is pure and deterministic so re-scans and test fixtures
// always reproduce the same decisions.
package keywords

import (
	"regexp"
	"strings"
)

// legalSuffix matches a trailing legal-form suffix. Longer alternatives come
// first so "& Co. KG" is stripped as a whole.
var legalSuffix = regexp.MustCompile(`(?i)[\s,]+(?:&\s*Co\.\s*KG|&\s*Co\.|GmbH|AG|Ltd\.|Inc\.|LLC|UG|KG|e\.V\.|SE|OHG|GbR)\s*$`)

// minKeywordLength is the shortest stripped or trading name kept as a keyword.
const minKeywordLength = 2

// Company is the subset of a company record keywords are derived from.
type Company struct {
	Name         string
	OfficialName string
	TradingName  string
}

// Keywords is the result of ExtractCompanyKeywords.
type Keywords struct {
	// Primary is always the company's name, empty if absent
	Primary string `json:"primary"`
	// All is the deduplicated keyword set in insertion order
	All []string `json:"all"`
}

// StripLegalSuffix removes one trailing legal-form suffix such as "GmbH" or
// "& Co. KG" from name.
func StripLegalSuffix(name string) string {
	return strings.TrimSpace(legalSuffix.ReplaceAllString(name, ""))
}

// ExtractCompanyKeywords returns the name variants an article may use to refer
// to the company.
func ExtractCompanyKeywords(c Company) Keywords {
	kw := Keywords{Primary: c.Name, All: []string{}}
	seen := make(map[string]struct{})
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		kw.All = append(kw.All, s)
	}
	addWithStripped := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		add(name)
		if stripped := StripLegalSuffix(name); stripped != name && len([]rune(stripped)) >= minKeywordLength {
			add(stripped)
		}
	}

	addWithStripped(c.Name)
	if official := strings.TrimSpace(c.OfficialName); official != "" && official != strings.TrimSpace(c.Name) {
		addWithStripped(official)
	}
	if trading := strings.TrimSpace(c.TradingName); len([]rune(trading)) >= minKeywordLength {
		add(trading)
	}
	return kw
}
