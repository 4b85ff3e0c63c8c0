package merge

import (
	"strings"

	"github.com/prlibrary/matching/internal/types"
)

// Completeness weights. The maximum attainable score is 100.
const (
	weightEmail        = 20
	weightPhone        = 15
	weightPosition     = 10
	weightCompanyName  = 15
	weightWebsite      = 10
	weightBeats        = 10
	weightSocial       = 10
	weightMediaProfile = 10
)

// CompletenessScore estimates how much useful data a payload carries (0..100).
// Adding a previously absent scored field never lowers the score.
func CompletenessScore(d types.ContactData) int {
	score := 0
	if len(d.Emails) > 0 {
		score += weightEmail
	}
	if len(d.Phones) > 0 {
		score += weightPhone
	}
	if strings.TrimSpace(d.Position) != "" {
		score += weightPosition
	}
	if strings.TrimSpace(d.CompanyName) != "" {
		score += weightCompanyName
	}
	if strings.TrimSpace(d.Website) != "" {
		score += weightWebsite
	}
	if len(d.Beats) > 0 {
		score += weightBeats
	}
	if len(d.SocialProfiles) > 0 {
		score += weightSocial
	}
	if d.HasMediaProfile {
		score += weightMediaProfile
	}
	return score
}

// BestVariant returns the index of the variant with the highest completeness
// score; the first one wins ties. It returns -1 for an empty list.
func BestVariant(variants []types.Variant) int {
	best, bestScore := -1, -1
	for i := range variants {
		if s := CompletenessScore(variants[i].Data); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// MechanicalMerge deterministically merges variants: the most complete
// variant is the base record, beats, media types and publications are
// unioned, and social profiles are unioned by (platform, url).
func MechanicalMerge(variants []types.Variant) types.ContactData {
	best := BestVariant(variants)
	if best < 0 {
		return types.ContactData{}
	}
	merged := variants[best].Data.Clone()

	var beats, mediaTypes, publications []string
	var profiles []types.SocialProfile
	seenBeat := map[string]struct{}{}
	seenMedia := map[string]struct{}{}
	seenPublication := map[string]struct{}{}
	seenProfile := map[types.SocialProfile]struct{}{}

	for _, v := range variants {
		beats = appendUnique(beats, seenBeat, v.Data.Beats)
		mediaTypes = appendUnique(mediaTypes, seenMedia, v.Data.MediaTypes)
		publications = appendUnique(publications, seenPublication, v.Data.Publications)
		for _, p := range v.Data.SocialProfiles {
			key := types.SocialProfile{Platform: p.Platform, URL: p.URL}
			if _, ok := seenProfile[key]; ok {
				continue
			}
			seenProfile[key] = struct{}{}
			profiles = append(profiles, p)
		}
	}

	merged.Beats = beats
	merged.MediaTypes = mediaTypes
	merged.Publications = publications
	merged.SocialProfiles = profiles
	return merged
}

func appendUnique(dst []string, seen map[string]struct{}, values []string) []string {
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
