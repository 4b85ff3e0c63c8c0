// Package monitoring merges per-variant publication monitoring configs into
// one effective config and migrates legacy single-field sources.
package monitoring

import (
	"strings"

	"github.com/prlibrary/matching/internal/types"
)

// DefaultConfig returns a disabled config with empty source lists.
func DefaultConfig() types.PublicationMonitoringConfig {
	return types.PublicationMonitoringConfig{
		IsEnabled:      false,
		RSSFeedURLs:    []string{},
		CheckFrequency: types.FrequencyDaily,
		Keywords:       []string{},
	}
}

// MergeConfigs combines configs contributed by several variants of the same
// publication. Enabled flags are ORed, list fields are unioned without
// duplicates, article counts are summed, and twice-daily checking wins over
// daily. A single config is returned as is, with nil lists made empty.
func MergeConfigs(configs []types.PublicationMonitoringConfig) types.PublicationMonitoringConfig {
	switch len(configs) {
	case 0:
		return DefaultConfig()
	case 1:
		c := configs[0]
		if c.RSSFeedURLs == nil {
			c.RSSFeedURLs = []string{}
		}
		if c.Keywords == nil {
			c.Keywords = []string{}
		}
		return c
	}

	merged := DefaultConfig()
	seenFeed := map[string]struct{}{}
	seenKeyword := map[string]struct{}{}
	for _, c := range configs {
		merged.IsEnabled = merged.IsEnabled || c.IsEnabled
		merged.AutoDetectRSS = merged.AutoDetectRSS || c.AutoDetectRSS
		if merged.WebsiteURL == nil && c.WebsiteURL != nil {
			url := *c.WebsiteURL
			merged.WebsiteURL = &url
		}
		merged.RSSFeedURLs = appendUnique(merged.RSSFeedURLs, seenFeed, c.RSSFeedURLs)
		merged.Keywords = appendUnique(merged.Keywords, seenKeyword, c.Keywords)
		if c.CheckFrequency == types.FrequencyTwiceDaily {
			merged.CheckFrequency = types.FrequencyTwiceDaily
		}
		merged.TotalArticlesFound += c.TotalArticlesFound
	}
	return merged
}

// MigrateLegacy builds a structured config from a publication's legacy
// website and RSS fields. An existing config is returned as is and the
// boolean reports whether a new config was produced.
func MigrateLegacy(existing *types.PublicationMonitoringConfig, website, rssURL string) (types.PublicationMonitoringConfig, bool) {
	if existing != nil {
		return *existing, false
	}
	cfg := DefaultConfig()
	if w := strings.TrimSpace(website); w != "" {
		cfg.WebsiteURL = &w
	}
	if r := strings.TrimSpace(rssURL); r != "" {
		cfg.RSSFeedURLs = append(cfg.RSSFeedURLs, r)
	}
	// legacy publications with a feed were actively watched; websites alone
	// start disabled and rely on feed auto-detection
	cfg.IsEnabled = len(cfg.RSSFeedURLs) > 0
	cfg.AutoDetectRSS = cfg.WebsiteURL != nil && len(cfg.RSSFeedURLs) == 0
	return cfg, true
}

// ForPublication returns the publication's structured config, migrating
// legacy fields when it has none.
func ForPublication(p *types.Publication) types.PublicationMonitoringConfig {
	cfg, _ := MigrateLegacy(p.Monitoring, p.Website, p.RSSFeedURL)
	return cfg
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
