package keywords

import (
	"math"
	"strings"

	"github.com/prlibrary/matching/internal/types"
)

// SEOConfirmThreshold is the minimum SEO score that confirms a content-only
// company match.
const SEOConfirmThreshold = 70

// Reason explains an auto-confirm decision
type Reason string

const (
	ReasonCompanyInTitle Reason = "company_in_title"
	ReasonCompanyPlusSEO Reason = "company_plus_seo"
	ReasonCompanyOnly    Reason = "company_only"
	ReasonNoCompanyMatch Reason = "no_company_match"
)

// Article is the text checked against a company's keywords.
type Article struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// CompanyMatch describes where a company keyword was found.
type CompanyMatch struct {
	Found          bool   `json:"found"`
	InTitle        bool   `json:"inTitle"`
	MatchedKeyword string `json:"matchedKeyword,omitempty"`
}

// AutoConfirmResult is the outcome of CheckAutoConfirm.
type AutoConfirmResult struct {
	ShouldConfirm bool             `json:"shouldConfirm"`
	Reason        Reason           `json:"reason"`
	CompanyMatch  CompanyMatch     `json:"companyMatch"`
	SEOScore      int              `json:"seoScore"`
	Confidence    types.Confidence `json:"confidence"`
}

// CheckAutoConfirm decides whether article belongs to the company described by
// companyKeywords. A keyword in the title confirms unconditionally; a keyword
// only in the content confirms when the SEO keywords score at least
// SEOConfirmThreshold. Matching is case-insensitive substring matching.
func CheckAutoConfirm(article Article, companyKeywords, seoKeywords []string) AutoConfirmResult {
	title := strings.ToLower(article.Title)
	content := strings.ToLower(article.Content)

	var match CompanyMatch
	for _, kw := range companyKeywords {
		needle := strings.ToLower(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}
		if strings.Contains(title, needle) {
			match = CompanyMatch{Found: true, InTitle: true, MatchedKeyword: kw}
			break
		}
	}
	if !match.Found {
		// the last keyword found in the content is reported
		for _, kw := range companyKeywords {
			needle := strings.ToLower(strings.TrimSpace(kw))
			if needle == "" {
				continue
			}
			if strings.Contains(content, needle) {
				match = CompanyMatch{Found: true, MatchedKeyword: kw}
			}
		}
	}

	if !match.Found {
		return newResult(false, ReasonNoCompanyMatch, match, 0)
	}
	if match.InTitle {
		return newResult(true, ReasonCompanyInTitle, match, 100)
	}

	score := SEOScore(title, content, seoKeywords)
	if score >= SEOConfirmThreshold {
		return newResult(true, ReasonCompanyPlusSEO, match, score)
	}
	return newResult(false, ReasonCompanyOnly, match, score)
}

// SEOScore awards 2 points per keyword in the title, else 1 point if it is in
// the content, and scales the total to 0..100. title and content must already
// be lowercased.
func SEOScore(title, content string, seoKeywords []string) int {
	if len(seoKeywords) == 0 {
		return 0
	}
	points := 0
	for _, kw := range seoKeywords {
		needle := strings.ToLower(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}
		switch {
		case strings.Contains(title, needle):
			points += 2
		case strings.Contains(content, needle):
			points++
		}
	}
	return int(math.Round(float64(points) / float64(len(seoKeywords)*2) * 100))
}

// ConfidenceFor maps a decision reason to a confidence level.
func ConfidenceFor(reason Reason) types.Confidence {
	switch reason {
	case ReasonCompanyInTitle:
		return types.ConfidenceVeryHigh
	case ReasonCompanyPlusSEO:
		return types.ConfidenceHigh
	case ReasonCompanyOnly:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

func newResult(confirm bool, reason Reason, match CompanyMatch, score int) AutoConfirmResult {
	return AutoConfirmResult{
		ShouldConfirm: confirm,
		Reason:        reason,
		CompanyMatch:  match,
		SEOScore:      score,
		Confidence:    ConfidenceFor(reason),
	}
}

// CheckCompanyArticle extracts keywords from a company payload and checks
// article against them.
func CheckCompanyArticle(company types.ContactData, article Article, seoKeywords []string) (Keywords, AutoConfirmResult) {
	kw := ExtractCompanyKeywords(Company{
		Name:         company.Name(),
		OfficialName: company.OfficialName,
		TradingName:  company.TradingName,
	})
	return kw, CheckAutoConfirm(article, kw.All, seoKeywords)
}
