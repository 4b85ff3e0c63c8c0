package deduplication

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/prlibrary/matching/internal/keywords"
	"github.com/prlibrary/matching/internal/merge"
	"github.com/prlibrary/matching/internal/types"
)

// Score weights
const (
	scoreTwoOrganizations = 50
	scoreExtraOrg         = 10
	scoreMediaProfile     = 10
	scoreVerifiedDomain   = 10
	scorePhone            = 5
	scoreBeats            = 5
	scoreSocial           = 5
)

// verifiedDomains are newsroom domains whose addresses vouch for a
// journalist's identity.
var verifiedDomains = map[string]bool{
	"spiegel.de":         true,
	"zeit.de":            true,
	"faz.net":            true,
	"sueddeutsche.de":    true,
	"taz.de":             true,
	"bild.de":            true,
	"welt.de":            true,
	"handelsblatt.com":   true,
	"wiwo.de":            true,
	"manager-magazin.de": true,
}

// IsVerifiedDomain reports whether domain or one of its parents is verified
func IsVerifiedDomain(domain string) bool {
	for domain != "" {
		if verifiedDomains[domain] {
			return true
		}
		_, parent, ok := strings.Cut(domain, ".")
		if !ok {
			return false
		}
		domain = parent
	}
	return false
}

// ScoreCandidate computes the aggregate confidence of a variant group.
// Fewer than two organizations earn no organization points.
func ScoreCandidate(variants []types.Variant) (int, types.ScoreBreakdown) {
	var b types.ScoreBreakdown

	orgs := types.CountOrganizations(variants)
	if orgs >= 2 {
		b.Organizations = scoreTwoOrganizations
		if orgs >= 3 {
			b.Organizations += scoreExtraOrg
		}
		if orgs >= 4 {
			b.Organizations += scoreExtraOrg
		}
	}

	for _, v := range variants {
		d := v.Data
		if d.HasMediaProfile {
			b.MediaProfile = scoreMediaProfile
		}
		for _, e := range d.Emails {
			if IsVerifiedDomain(emailDomain(e.Address)) {
				b.VerifiedDomain = scoreVerifiedDomain
			}
		}
		if len(d.Phones) > 0 {
			b.Phone = scorePhone
		}
		if len(d.Beats) > 0 {
			b.Beats = scoreBeats
		}
		if len(d.SocialProfiles) > 0 {
			b.Social = scoreSocial
		}
	}
	return b.Total(), b
}

// RecommendVariant returns the index of the most complete variant, the first
// one on ties, or -1 for an empty list.
func RecommendVariant(variants []types.Variant) int {
	return merge.BestVariant(variants)
}

// VariantsHash fingerprints the identities and payloads of variants,
// ignoring order and scan timestamps.
func VariantsHash(variants []types.Variant) string {
	type entry struct {
		Key        string                             `json:"k"`
		Data       types.ContactData                  `json:"d"`
		Monitoring *types.PublicationMonitoringConfig `json:"m,omitempty"`
	}
	entries := make([]entry, 0, len(variants))
	for i := range variants {
		entries = append(entries, entry{variants[i].Key(), variants[i].Data, variants[i].Monitoring})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	b, err := json.Marshal(entries)
	if err != nil {
		// plain data; cannot happen
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

// MergeVariantSets adds incoming variants to existing ones. An incoming
// variant with a known identity replaces that variant's payload in place;
// unknown identities are appended.
func MergeVariantSets(existing, incoming []types.Variant) []types.Variant {
	out := make([]types.Variant, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	index := make(map[string]int, len(out))
	for i := range out {
		index[out[i].Key()] = i
	}
	for _, v := range incoming {
		if i, ok := index[v.Key()]; ok {
			out[i] = v
			continue
		}
		index[v.Key()] = len(out)
		out = append(out, v)
	}
	return out
}

// CompanyConfidence checks every variant's names against the keywords of
// the most complete variant. It returns the weakest confidence and whether
// every variant would be auto-confirmed. Single variants yield ("", false).
func CompanyConfidence(variants []types.Variant) (types.Confidence, bool) {
	baseIdx := RecommendVariant(variants)
	if len(variants) < 2 || baseIdx < 0 {
		return "", false
	}
	base := variants[baseIdx].Data
	kw := keywords.ExtractCompanyKeywords(keywords.Company{
		Name:         base.Name(),
		OfficialName: base.OfficialName,
		TradingName:  base.TradingName,
	})

	weakest := types.ConfidenceVeryHigh
	all := true
	for i, v := range variants {
		if i == baseIdx {
			continue
		}
		article := keywords.Article{
			Title:   v.Data.Name(),
			Content: v.Data.OfficialName + " " + v.Data.TradingName,
		}
		res := keywords.CheckAutoConfirm(article, kw.All, nil)
		if res.Confidence.Rank() < weakest.Rank() {
			weakest = res.Confidence
		}
		all = all && res.ShouldConfirm
	}
	return weakest, all
}
