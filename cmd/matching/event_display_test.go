package main

import (
	"os"
	"testing"
	"time"

	"github.com/prlibrary/matching/internal/config"
	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/storage"
)

func TestExtractEventMetadata(t *testing.T) {
	tests := []struct {
		name      string
		eventType events.EventType
		data      map[string]interface{}
		expected  string
	}{
		{
			name:      "scan completed from stored JSON",
			eventType: events.EventTypeScanCompleted,
			data: map[string]interface{}{
				"stats": map[string]interface{}{
					"candidatesCreated":   float64(3),
					"candidatesUpdated":   float64(1),
					"candidatesUnchanged": float64(7),
				},
				"durationMs": float64(1500),
			},
			expected: "3 created | 1 updated | 7 unchanged | 1.5s",
		},
		{
			name:      "scan failed with errors",
			eventType: events.EventTypeScanFailed,
			data: map[string]interface{}{
				"stats":      map[string]interface{}{"errors": 2},
				"durationMs": 20,
			},
			expected: "0 created | 0 updated | 0 unchanged | 2 errors | 20ms",
		},
		{
			name:      "scan started in development mode",
			eventType: events.EventTypeScanStarted,
			data: map[string]interface{}{
				"triggeredBy":     "scheduled",
				"developmentMode": true,
				"thresholds":      map[string]interface{}{"minScore": float64(10), "minOrganizations": float64(2)},
			},
			expected: "scheduled | dev | score>=10 orgs>=2",
		},
		{
			name:      "candidate reviewed",
			eventType: events.EventTypeCandidateReviewed,
			data: map[string]interface{}{
				"entityType":        "contact",
				"score":             float64(85),
				"organizationCount": float64(3),
				"status":            "manually_confirmed",
				"reviewedBy":        "maria",
			},
			expected: "contact | score 85 | 3 orgs | manually_confirmed | maria",
		},
		{
			name:      "candidate fields missing",
			eventType: events.EventTypeCandidateCreated,
			data:      map[string]interface{}{},
			expected:  "score 0 | 0 orgs",
		},
		{
			name:      "ai fallback",
			eventType: events.EventTypeMergeAIFallback,
			data: map[string]interface{}{
				"variantCount": float64(4),
				"source":       "mechanical",
				"errorKind":    "timeout",
				"durationMs":   float64(30000),
			},
			expected: "4 variants | mechanical | timeout | 30.0s",
		},
		{
			name:      "breaker change",
			eventType: events.EventTypeCircuitBreakerStateChange,
			data:      map[string]interface{}{"from": "closed", "to": "open", "failures": 5},
			expected:  "closed → open | 5 failures",
		},
		{
			name:      "events pruned",
			eventType: events.EventTypeEventsPruned,
			data:      map[string]interface{}{"deleted": 12345, "retentionDays": 30},
			expected:  "12,345 deleted | retention 30d",
		},
		{
			name:      "candidate imported",
			eventType: events.EventTypeCandidateImported,
			data: map[string]interface{}{
				"entityType":        "contact",
				"score":             float64(80),
				"organizationCount": float64(3),
				"status":            "imported",
				"importedRecordId":  "lib-1",
			},
			expected: "contact | score 80 | 3 orgs | imported | → lib-1",
		},
		{
			name:      "auto import with failures",
			eventType: events.EventTypeAutoImportCompleted,
			data: map[string]interface{}{
				"minScore": float64(80), "useAi": true,
				"processed": float64(5), "imported": float64(4), "failed": float64(1),
			},
			expected: "4/5 imported | 1 failed | score>=80 | ai",
		},
		{
			name:      "conflict opened",
			eventType: events.EventTypeConflictOpened,
			data: map[string]interface{}{
				"entityType": "contact", "field": "position",
				"confidence": 0.75, "priority": "medium", "status": "pending",
			},
			expected: "contact:position | 75% | medium | pending",
		},
		{
			name:      "library field updated",
			eventType: events.EventTypeLibraryFieldUpdated,
			data:      map[string]interface{}{"entityType": "company", "field": "website", "confidence": float64(1)},
			expected:  "company:website | 100%",
		},
		{
			name:      "type without metadata",
			eventType: events.EventTypeScanSkipped,
			data:      map[string]interface{}{"whatever": 1},
			expected:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := &events.Event{
				ID:        "e1",
				Type:      tt.eventType,
				Timestamp: time.Now(),
				Severity:  events.SeverityInfo,
				Data:      tt.data,
			}
			got := extractEventMetadata(event)
			if got != tt.expected {
				t.Errorf("extractEventMetadata() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetEventEmoji(t *testing.T) {
	tests := []struct {
		eventType events.EventType
		severity  events.EventSeverity
		want      string
	}{
		{events.EventTypeScanCompleted, events.SeverityInfo, "✅"},
		{events.EventTypeEventsPruned, events.SeverityInfo, "🧹"},
		{events.EventTypeCandidateImported, events.SeverityInfo, "📥"},
		{events.EventTypeConflictOpened, events.SeverityWarning, "⚖️"},
		{events.EventTypeScanFailed, events.SeverityError, "❌"},
		{events.EventTypeSettingsFallback, events.SeverityWarning, "⚠️"},
		{events.EventType("unknown"), events.EventSeverity("odd"), "•"},
	}
	for _, tt := range tests {
		got := getEventEmoji(&events.Event{Type: tt.eventType, Severity: tt.severity})
		if got != tt.want {
			t.Errorf("getEventEmoji(%s, %s) = %q, want %q", tt.eventType, tt.severity, got, tt.want)
		}
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"Müller-Lüdenscheidt", 8, "Mülle..."},
		{"abcdef", 1, "a..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-45000, "-45,000"},
		{2000000001, "2,000,000,001"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDurationMs(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0ms"},
		{999, "999ms"},
		{1000, "1.0s"},
		{59999, "60.0s"},
		{90000, "1.5m"},
	}
	for _, tt := range tests {
		if got := formatDurationMs(tt.in); got != tt.want {
			t.Errorf("formatDurationMs(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStorageConfig(t *testing.T) {
	t.Setenv("MATCHING_STORAGE_PATH", "")
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	tests := []struct {
		name     string
		cfg      config.Config
		explicit string
		want     storage.Config
	}{
		{
			name: "discovered default",
			cfg:  config.Config{StorageDriver: storage.DriverSQLite},
			want: storage.Config{Driver: storage.DriverSQLite, Path: storage.DefaultPath},
		},
		{
			name: "configured path",
			cfg:  config.Config{StorageDriver: storage.DriverSQLite, StoragePath: "data/x.db"},
			want: storage.Config{Driver: storage.DriverSQLite, Path: "data/x.db"},
		},
		{
			name:     "flag overrides postgres",
			cfg:      config.Config{StorageDriver: storage.DriverPostgres, DatabaseURL: "postgres://db"},
			explicit: "local.db",
			want:     storage.Config{Driver: storage.DriverSQLite, Path: "local.db", URL: "postgres://db"},
		},
		{
			name: "postgres",
			cfg:  config.Config{StorageDriver: storage.DriverPostgres, DatabaseURL: "postgres://db"},
			want: storage.Config{Driver: storage.DriverPostgres, URL: "postgres://db"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storageConfig(&tt.cfg, tt.explicit)
			if err != nil {
				t.Fatalf("storageConfig() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("storageConfig() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}
