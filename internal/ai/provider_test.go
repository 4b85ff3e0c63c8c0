package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/merge"
	"github.com/prlibrary/matching/internal/types"
)

// messagesServer fakes the Messages API. reply returns the status and the
// assistant text (or an error body for non-200 statuses).
func messagesServer(t *testing.T, reply func(r *http.Request) (int, string)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		status, text := reply(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{
				"type":  "error",
				"error": map[string]any{"type": "api_error", "message": text},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         DefaultModel,
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": text}},
			"usage":         map[string]any{"input_tokens": 120, "output_tokens": 40},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestProvider(t *testing.T, url string, rec *events.Recorder) *Provider {
	t.Helper()
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = url
	cfg.FailureThreshold = 2
	cfg.OpenTimeout = time.Hour
	p, err := NewProvider(cfg, rec, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func testVariants() []types.Variant {
	return []types.Variant{
		{OrganizationID: "a", OrganizationName: "Agentur A", SourceEntityID: "1",
			Data: types.ContactData{FirstName: "Anna", LastName: "Schmidt", Emails: []types.Email{{Address: "anna@spiegel.de"}}}},
		{OrganizationID: "b", SourceEntityID: "2",
			Data: types.ContactData{DisplayName: "Anna Schmidt", Phones: []types.Phone{{Number: "+49 40 1"}}}},
	}
}

func TestProviderMergeVariants(t *testing.T) {
	srv, calls := messagesServer(t, func(r *http.Request) (int, string) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultModel, body["model"])
		return http.StatusOK, "Here is the merged record:\n```json\n" +
			`{"firstName": "Anna", "lastName": "Schmidt", "emails": [{"email": "anna@spiegel.de", "isPrimary": true}], "phones": [{"number": "+49 40 1"}],}` +
			"\n```"
	})
	p := newTestProvider(t, srv.URL, &events.Recorder{})

	data, err := p.MergeVariants(context.Background(), testVariants(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Anna", data.FirstName)
	assert.Equal(t, "anna@spiegel.de", data.PrimaryEmail())
	assert.Equal(t, "+49 40 1", data.PrimaryPhone())
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestProviderErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		text   string
		want   merge.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, "invalid x-api-key", merge.KindAuth},
		{"forbidden", http.StatusForbidden, "forbidden", merge.KindAuth},
		{"rate limited", http.StatusTooManyRequests, "rate limited", merge.KindQuota},
		{"server error", http.StatusInternalServerError, "boom", merge.KindUnavailable},
		{"overloaded", 529, "overloaded", merge.KindUnavailable},
		{"bad request", http.StatusBadRequest, "bad request", merge.KindProvider},
		{"prose only", http.StatusOK, "I cannot merge these records.", merge.KindMalformed},
		{"schema violation", http.StatusOK, `{"emails": "anna@spiegel.de"}`, merge.KindMalformed},
		{"empty record", http.StatusOK, `{}`, merge.KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := messagesServer(t, func(*http.Request) (int, string) { return tt.status, tt.text })
			p := newTestProvider(t, srv.URL, &events.Recorder{})

			_, err := p.MergeVariants(context.Background(), testVariants(), 5*time.Second)
			require.Error(t, err)
			var perr *merge.ProviderError
			require.True(t, errors.As(err, &perr), "want *merge.ProviderError, got %T", err)
			assert.Equal(t, tt.want, perr.Kind)
			assert.Equal(t, int32(1), atomic.LoadInt32(calls), "no retries")
		})
	}
}

func TestProviderTimeout(t *testing.T) {
	release := make(chan struct{})
	srv, _ := messagesServer(t, func(r *http.Request) (int, string) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		return http.StatusOK, `{"displayName": "late"}`
	})
	defer close(release)
	p := newTestProvider(t, srv.URL, &events.Recorder{})

	_, err := p.MergeVariants(context.Background(), testVariants(), 50*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, merge.KindTimeout, merge.Classify(err))
}

func TestProviderCircuitBreaker(t *testing.T) {
	srv, calls := messagesServer(t, func(*http.Request) (int, string) {
		return http.StatusServiceUnavailable, "down"
	})
	rec := &events.Recorder{}
	p := newTestProvider(t, srv.URL, rec)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.MergeVariants(ctx, testVariants(), 5*time.Second)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, p.Breaker().State())
	require.Len(t, rec.OfType(events.EventTypeCircuitBreakerStateChange), 1)

	_, err := p.MergeVariants(ctx, testVariants(), 5*time.Second)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, merge.KindUnavailable, merge.Classify(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(calls), "open circuit fails fast")
}

func TestProviderAuthFailuresDoNotTripBreaker(t *testing.T) {
	srv, _ := messagesServer(t, func(*http.Request) (int, string) {
		return http.StatusUnauthorized, "invalid x-api-key"
	})
	p := newTestProvider(t, srv.URL, &events.Recorder{})
	for i := 0; i < 3; i++ {
		_, err := p.MergeVariants(context.Background(), testVariants(), 5*time.Second)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitClosed, p.Breaker().State())
}

func TestProviderFallsBackThroughMerger(t *testing.T) {
	srv, _ := messagesServer(t, func(*http.Request) (int, string) {
		return http.StatusTooManyRequests, "slow down"
	})
	rec := &events.Recorder{}
	m := merge.NewMerger(newTestProvider(t, srv.URL, rec), 5*time.Second, rec, zerolog.Nop())

	res := m.MergeVariants(context.Background(), testVariants(), true)
	assert.Equal(t, types.MergeSourceMechanical, res.Source)
	assert.True(t, res.FellBack())
	assert.Equal(t, merge.KindQuota, merge.Classify(res.FallbackReason))
	assert.Len(t, rec.OfType(events.EventTypeMergeAIFallback), 1)
}

func TestNewProviderRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewProvider(Config{}, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestBuildMergePrompt(t *testing.T) {
	prompt, err := buildMergePrompt(testVariants())
	require.NoError(t, err)
	assert.Contains(t, prompt, "The following 2 records")
	assert.Contains(t, prompt, `"organization": "Agentur A"`)
	assert.Contains(t, prompt, `"organization": "b"`)
	assert.Contains(t, prompt, "anna@spiegel.de")
}
