package deduplication

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/types"
)

func TestAnalyticsEmptyStore(t *testing.T) {
	stats, err := Analytics(context.Background(), setupStore(t))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0, stats.AverageScore)
	assert.Zero(t, stats.ImportRate)
	assert.Nil(t, stats.LastScan)
	assert.Empty(t, stats.TopOrganizations)
	assert.Len(t, stats.ScoreDistribution, len(scoreBuckets))
	for _, s := range types.CandidateStatuses {
		v, ok := stats.ByStatus[s]
		assert.True(t, ok, "status %s is always reported", s)
		assert.Equal(t, 0, v)
	}
}

func TestAnalyticsAfterScan(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedJournalist(t, store)
	job, err := newTestScanner(t, store, &events.Recorder{}).Scan(ctx, Options{})
	require.NoError(t, err)

	stats, err := Analytics(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[types.StatusPending])
	assert.Equal(t, 70, stats.AverageScore)
	assert.Equal(t, ScoreBucket{Min: 60, Max: 79, Count: 1}, stats.ScoreDistribution[3])
	require.Len(t, stats.TopOrganizations, 2)
	assert.Equal(t, "a", stats.TopOrganizations[0].OrganizationID)
	assert.Equal(t, "b", stats.TopOrganizations[1].OrganizationID)
	assert.Equal(t, 70, stats.TopOrganizations[0].AverageScore)
	require.NotNil(t, stats.LastScan)
	assert.Equal(t, job.ID, stats.LastScan.ID)
}

func TestSummarize(t *testing.T) {
	var candidates []*types.MatchingCandidate
	// org-00 appears in every candidate, org-01..org-11 once each
	for i := 1; i <= 11; i++ {
		c := &types.MatchingCandidate{Status: types.StatusPending, Score: 10 * (i % 11)}
		if i <= 2 {
			c.Status = types.StatusImported
		}
		c.Variants = []types.Variant{
			{OrganizationID: "org-00", OrganizationName: "Hub"},
			{OrganizationID: fmt.Sprintf("org-%02d", i)},
		}
		candidates = append(candidates, c)
	}

	stats := summarize(candidates)
	assert.Equal(t, 11, stats.Total)
	assert.Equal(t, 9, stats.ByStatus[types.StatusPending])
	assert.Equal(t, 2, stats.ByStatus[types.StatusImported])
	assert.InDelta(t, 2.0/11, stats.ImportRate, 1e-9)
	// scores 10..100 and 0 sum to 550
	assert.Equal(t, 50, stats.AverageScore)

	counts := make([]int, 0, len(stats.ScoreDistribution))
	for _, b := range stats.ScoreDistribution {
		counts = append(counts, b.Count)
	}
	assert.Equal(t, []int{2, 2, 2, 2, 3}, counts)

	require.Len(t, stats.TopOrganizations, topOrganizationsLimit)
	assert.Equal(t, OrganizationStats{OrganizationID: "org-00", OrganizationName: "Hub", CandidateCount: 11, AverageScore: 50},
		stats.TopOrganizations[0])
	assert.Equal(t, "org-01", stats.TopOrganizations[1].OrganizationID)
	assert.Equal(t, "org-09", stats.TopOrganizations[9].OrganizationID)
}
