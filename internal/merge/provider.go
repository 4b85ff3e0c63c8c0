package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prlibrary/matching/internal/types"
)

// TextMergeProvider merges variant payloads with an external text-generation
// service. Implementations must honor ctx and timeout and return a
// *ProviderError on failure.
type TextMergeProvider interface {
	MergeVariants(ctx context.Context, variants []types.Variant, timeout time.Duration) (types.ContactData, error)
}

// ErrorKind classifies provider failures
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindMalformed   ErrorKind = "malformed_response"
	KindUnavailable ErrorKind = "unavailable"
	KindQuota       ErrorKind = "quota"
	KindAuth        ErrorKind = "auth"
	KindProvider    ErrorKind = "provider"
)

// Transient reports whether the failure says nothing about the request
// itself, so the same call may succeed later.
func (k ErrorKind) Transient() bool {
	return k == KindTimeout || k == KindUnavailable || k == KindQuota
}

// ProviderError is the typed error returned by TextMergeProvider
// implementations.
type ProviderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("merge provider: %s", e.Kind)
	}
	return fmt.Sprintf("merge provider: %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err with a kind.
func NewProviderError(kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Err: err}
}

// Classify returns the kind of a provider failure. Untyped errors are
// classified as timeouts when they wrap a deadline, otherwise as generic
// provider errors.
func Classify(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindProvider
}
