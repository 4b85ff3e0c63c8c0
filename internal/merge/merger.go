// Package merge combines the variants of one entity into a canonical record.
//
// Merging tries an external TextMergeProvider first and falls back to a
// deterministic mechanical merge on any failure. Callers always get a result;
// provider errors are logged and emitted as events, never returned.
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/types"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 30 * time.Second

// Result is the tagged outcome of MergeVariants. Source tells callers whether
// the payload came from the provider or the mechanical merge.
type Result struct {
	Source types.MergeSource
	Data   types.ContactData
	// FallbackReason is set when the provider was tried and failed
	FallbackReason error
}

// FellBack reports whether the provider was tried and the mechanical merge
// was used instead.
func (r Result) FellBack() bool { return r.FallbackReason != nil }

// Merger merges variants with an optional provider.
type Merger struct {
	provider TextMergeProvider
	timeout  time.Duration
	emitter  events.Emitter
	logger   zerolog.Logger
	now      func() time.Time
}

// NewMerger creates a Merger. provider may be nil, in which case every merge
// is mechanical. A non-positive timeout selects DefaultTimeout.
func NewMerger(provider TextMergeProvider, timeout time.Duration, emitter events.Emitter, logger zerolog.Logger) *Merger {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Merger{
		provider: provider,
		timeout:  timeout,
		emitter:  emitter,
		logger:   logger.With().Str("component", "merge").Logger(),
		now:      time.Now,
	}
}

// MergeVariants merges variants into one record. A single variant is
// returned unchanged. With useAI set and a provider configured the provider is
// tried first.
func (m *Merger) MergeVariants(ctx context.Context, variants []types.Variant, useAI bool) Result {
	switch len(variants) {
	case 0:
		return Result{Source: types.MergeSourceMechanical}
	case 1:
		return Result{Source: types.MergeSourceSingle, Data: variants[0].Data}
	}

	if !useAI || m.provider == nil {
		res := Result{Source: types.MergeSourceMechanical, Data: MechanicalMerge(variants)}
		m.emit(ctx, events.MergeData{VariantCount: len(variants), Source: res.Source})
		return res
	}

	start := m.now()
	data, err := m.callProvider(ctx, variants)
	elapsed := m.now().Sub(start)
	if err == nil {
		m.emit(ctx, events.MergeData{
			VariantCount: len(variants),
			Source:       types.MergeSourceAI,
			DurationMs:   elapsed.Milliseconds(),
		})
		return Result{Source: types.MergeSourceAI, Data: data}
	}

	kind := Classify(err)
	m.logger.Warn().Err(err).Str("kind", string(kind)).Int("variants", len(variants)).
		Msg("AI merge failed, falling back to mechanical merge")
	m.emit(ctx, events.MergeData{
		VariantCount: len(variants),
		Source:       types.MergeSourceMechanical,
		ErrorKind:    string(kind),
		Error:        err.Error(),
		DurationMs:   elapsed.Milliseconds(),
	})
	return Result{
		Source:         types.MergeSourceMechanical,
		Data:           MechanicalMerge(variants),
		FallbackReason: err,
	}
}

type providerOutcome struct {
	data types.ContactData
	err  error
}

// callProvider runs the provider under the merge timeout. A provider that
// ignores its context is abandoned once the deadline passes.
func (m *Merger) callProvider(ctx context.Context, variants []types.Variant) (types.ContactData, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan providerOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- providerOutcome{err: NewProviderError(KindProvider, fmt.Errorf("provider panicked: %v", r))}
			}
		}()
		data, err := m.provider.MergeVariants(ctx, variants, m.timeout)
		done <- providerOutcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if ctx.Err() != nil {
				return types.ContactData{}, NewProviderError(KindTimeout, out.err)
			}
			return types.ContactData{}, out.err
		}
		if out.data.IsEmpty() {
			return types.ContactData{}, NewProviderError(KindMalformed, fmt.Errorf("provider returned an empty record"))
		}
		return out.data, nil
	case <-ctx.Done():
		return types.ContactData{}, NewProviderError(KindTimeout, ctx.Err())
	}
}

func (m *Merger) emit(ctx context.Context, data events.MergeData) {
	ev, err := events.NewMergeEvent(data)
	events.Emit(ctx, m.emitter, ev, err)
}
