// Package ai merges variant payloads with the Anthropic Messages API.
//
// Provider implements merge.TextMergeProvider with exactly one request per
// merge and no retries. Calls are bounded by the caller's timeout, a
// concurrency limit and a request rate. A circuit breaker fails fast after
// repeated transient failures.
package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/merge"
	"github.com/prlibrary/matching/internal/types"
)

// DefaultModel is used when no model is configured
const DefaultModel = "claude-sonnet-4-5-20250929"

// Config holds provider configuration
type Config struct {
	APIKey  string // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	BaseURL string // API base URL override, for proxies and tests
	Model   string // Model to use (default: DefaultModel)

	MaxTokens          int64 // Response token limit (default: 2048)
	MaxConcurrentCalls int   // Concurrent API calls (default: 3, 0 = unlimited)
	RequestsPerMinute  int   // Request rate (default: 0 = unlimited)

	// Circuit breaker settings
	FailureThreshold int           // Failures before opening circuit (default: 5)
	SuccessThreshold int           // Successes in half-open before closing (default: 2)
	OpenTimeout      time.Duration // How long to keep circuit open (default: 30s)
}

// DefaultConfig returns the default provider configuration
func DefaultConfig() Config {
	return Config{
		Model:              DefaultModel,
		MaxTokens:          2048,
		MaxConcurrentCalls: 3,
		FailureThreshold:   5,
		SuccessThreshold:   2,
		OpenTimeout:        30 * time.Second,
	}
}

// Provider is a merge.TextMergeProvider backed by Claude.
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	breaker   *CircuitBreaker
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

var _ merge.TextMergeProvider = (*Provider)(nil)

// NewProvider creates a provider. Zero-valued fields of cfg take their
// defaults.
func NewProvider(cfg Config, emitter events.Emitter, logger zerolog.Logger) (*Provider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	logger = logger.With().Str("component", "ai").Str("model", cfg.Model).Logger()

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	p := &Provider{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
	p.breaker = NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout,
		func(from, to CircuitState, failures int) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Int("failures", failures).
				Msg("circuit breaker state change")
			ev := events.NewSimpleEvent(events.EventTypeCircuitBreakerStateChange, events.SeverityWarning,
				fmt.Sprintf("AI merge circuit breaker %s -> %s", from, to))
			ev.Data = map[string]interface{}{"from": from.String(), "to": to.String(), "failures": failures}
			emitter.Emit(context.Background(), ev)
		})
	if cfg.MaxConcurrentCalls > 0 {
		p.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}
	if cfg.RequestsPerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), 1)
	}

	logger.Info().Int("max_concurrent", cfg.MaxConcurrentCalls).Int("requests_per_minute", cfg.RequestsPerMinute).
		Int("failure_threshold", cfg.FailureThreshold).Msg("AI merge provider initialized")
	return p, nil
}

// Breaker exposes the circuit breaker for health reporting
func (p *Provider) Breaker() *CircuitBreaker { return p.breaker }

// MergeVariants implements merge.TextMergeProvider. Every failure is a
// *merge.ProviderError.
func (p *Provider) MergeVariants(ctx context.Context, variants []types.Variant, timeout time.Duration) (types.ContactData, error) {
	if err := p.breaker.Allow(); err != nil {
		return types.ContactData{}, merge.NewProviderError(merge.KindUnavailable, err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return types.ContactData{}, merge.NewProviderError(merge.KindTimeout,
				fmt.Errorf("waiting for a concurrency slot: %w", err))
		}
		defer p.sem.Release(1)
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return types.ContactData{}, merge.NewProviderError(merge.KindTimeout,
				fmt.Errorf("waiting for the rate limiter: %w", err))
		}
	}

	prompt, err := buildMergePrompt(variants)
	if err != nil {
		return types.ContactData{}, merge.NewProviderError(merge.KindProvider, err)
	}

	start := time.Now()
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		perr := classifyError(ctx, err)
		if perr.Kind.Transient() {
			p.breaker.RecordFailure()
		}
		return types.ContactData{}, perr
	}
	p.breaker.RecordSuccess()

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	raw, err := extractJSONObject(text.String())
	if err != nil {
		return types.ContactData{}, merge.NewProviderError(merge.KindMalformed, err)
	}
	data, err := decodeMergedRecord(raw)
	if err != nil {
		return types.ContactData{}, merge.NewProviderError(merge.KindMalformed, err)
	}

	p.logger.Debug().Int("variants", len(variants)).
		Int64("input_tokens", resp.Usage.InputTokens).Int64("output_tokens", resp.Usage.OutputTokens).
		Dur("duration", time.Since(start)).Msg("AI merge completed")
	return data, nil
}
