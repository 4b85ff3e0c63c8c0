package deduplication

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/prlibrary/matching/internal/types"
)

// topOrganizationsLimit caps CandidateStats.TopOrganizations
const topOrganizationsLimit = 10

// scoreBuckets partition the 0..100 score range, upper bounds inclusive
var scoreBuckets = []ScoreBucket{
	{Min: 0, Max: 19},
	{Min: 20, Max: 39},
	{Min: 40, Max: 59},
	{Min: 60, Max: 79},
	{Min: 80, Max: 100},
}

// AnalyticsStore is the storage candidate analytics read from
type AnalyticsStore interface {
	ListCandidates(ctx context.Context, filter types.CandidateFilter) ([]*types.MatchingCandidate, error)
	ListScanJobs(ctx context.Context, limit int) ([]*types.ScanJob, error)
}

// CandidateStats summarize every stored candidate
type CandidateStats struct {
	Total             int                           `json:"total"`
	ByStatus          map[types.CandidateStatus]int `json:"byStatus"`
	AverageScore      int                           `json:"averageScore"`
	ScoreDistribution []ScoreBucket                 `json:"scoreDistribution"`
	TopOrganizations  []OrganizationStats           `json:"topOrganizations"`
	LastScan          *types.ScanJob                `json:"lastScan,omitempty"`
	ImportRate        float64                       `json:"importRate"`
}

// ScoreBucket counts candidates scoring within [Min, Max]
type ScoreBucket struct {
	Min   int `json:"min"`
	Max   int `json:"max"`
	Count int `json:"count"`
}

// OrganizationStats counts the candidate variants one organization
// contributed
type OrganizationStats struct {
	OrganizationID   string `json:"organizationId"`
	OrganizationName string `json:"organizationName,omitempty"`
	CandidateCount   int    `json:"candidateCount"`
	AverageScore     int    `json:"averageScore"`
}

// Analytics computes CandidateStats over all candidates and the latest scan
func Analytics(ctx context.Context, store AnalyticsStore) (*CandidateStats, error) {
	candidates, err := store.ListCandidates(ctx, types.CandidateFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	jobs, err := store.ListScanJobs(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan jobs: %w", err)
	}

	stats := summarize(candidates)
	if len(jobs) > 0 {
		stats.LastScan = jobs[0]
	}
	return stats, nil
}

func summarize(candidates []*types.MatchingCandidate) *CandidateStats {
	stats := &CandidateStats{
		Total:             len(candidates),
		ByStatus:          make(map[types.CandidateStatus]int, len(types.CandidateStatuses)),
		ScoreDistribution: make([]ScoreBucket, len(scoreBuckets)),
		TopOrganizations:  []OrganizationStats{},
	}
	for _, s := range types.CandidateStatuses {
		stats.ByStatus[s] = 0
	}
	copy(stats.ScoreDistribution, scoreBuckets)

	type orgTotals struct {
		name  string
		count int
		score int
	}
	orgs := make(map[string]*orgTotals)
	totalScore := 0
	for _, c := range candidates {
		stats.ByStatus[c.Status]++
		totalScore += c.Score
		for i := range stats.ScoreDistribution {
			if b := &stats.ScoreDistribution[i]; c.Score >= b.Min && c.Score <= b.Max {
				b.Count++
				break
			}
		}
		for _, v := range c.Variants {
			o, ok := orgs[v.OrganizationID]
			if !ok {
				o = &orgTotals{name: v.OrganizationName}
				orgs[v.OrganizationID] = o
			}
			o.count++
			o.score += c.Score
		}
	}
	if stats.Total == 0 {
		return stats
	}

	stats.AverageScore = roundDiv(totalScore, stats.Total)
	stats.ImportRate = float64(stats.ByStatus[types.StatusImported]) / float64(stats.Total)
	for id, o := range orgs {
		stats.TopOrganizations = append(stats.TopOrganizations, OrganizationStats{
			OrganizationID:   id,
			OrganizationName: o.name,
			CandidateCount:   o.count,
			AverageScore:     roundDiv(o.score, o.count),
		})
	}
	sort.Slice(stats.TopOrganizations, func(i, j int) bool {
		a, b := stats.TopOrganizations[i], stats.TopOrganizations[j]
		if a.CandidateCount != b.CandidateCount {
			return a.CandidateCount > b.CandidateCount
		}
		return a.OrganizationID < b.OrganizationID
	})
	if len(stats.TopOrganizations) > topOrganizationsLimit {
		stats.TopOrganizations = stats.TopOrganizations[:topOrganizationsLimit]
	}
	return stats
}

func roundDiv(sum, n int) int {
	return int(math.Round(float64(sum) / float64(n)))
}
