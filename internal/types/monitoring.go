package types

import "fmt"

// PublicationMonitoringConfig describes which web and RSS sources of a
// publication are watched for new articles.
type PublicationMonitoringConfig struct {
	IsEnabled          bool           `json:"isEnabled" yaml:"isEnabled"`
	WebsiteURL         *string        `json:"websiteUrl,omitempty" yaml:"websiteUrl,omitempty"`
	RSSFeedURLs        []string       `json:"rssFeedUrls" yaml:"rssFeedUrls"`
	AutoDetectRSS      bool           `json:"autoDetectRss" yaml:"autoDetectRss"`
	CheckFrequency     CheckFrequency `json:"checkFrequency" yaml:"checkFrequency"`
	Keywords           []string       `json:"keywords" yaml:"keywords"`
	TotalArticlesFound int            `json:"totalArticlesFound" yaml:"totalArticlesFound"`
}

// Validate checks if the config has valid field values
func (c *PublicationMonitoringConfig) Validate() error {
	if !c.CheckFrequency.IsValid() {
		return fmt.Errorf("invalid check frequency: %s", c.CheckFrequency)
	}
	if c.TotalArticlesFound < 0 {
		return fmt.Errorf("total_articles_found cannot be negative")
	}
	return nil
}

// CheckFrequency is how often monitored sources are polled
type CheckFrequency string

const (
	FrequencyDaily      CheckFrequency = "daily"
	FrequencyTwiceDaily CheckFrequency = "twice_daily"
)

// IsValid checks if the frequency value is valid
func (f CheckFrequency) IsValid() bool {
	return f == FrequencyDaily || f == FrequencyTwiceDaily
}
