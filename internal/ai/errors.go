package ai

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/prlibrary/matching/internal/merge"
)

// classifyError maps an API call failure to a provider error kind
func classifyError(ctx context.Context, err error) *merge.ProviderError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return merge.NewProviderError(merge.KindAuth, err)
		case code == http.StatusTooManyRequests:
			return merge.NewProviderError(merge.KindQuota, err)
		case code >= 500:
			// includes 529 overloaded
			return merge.NewProviderError(merge.KindUnavailable, err)
		default:
			return merge.NewProviderError(merge.KindProvider, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return merge.NewProviderError(merge.KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return merge.NewProviderError(merge.KindTimeout, err)
		}
		return merge.NewProviderError(merge.KindUnavailable, err)
	}
	return merge.NewProviderError(merge.KindProvider, err)
}
