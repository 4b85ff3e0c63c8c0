package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/prlibrary/matching/internal/events"
)

// displayEvent prints one event in a two-line format
func displayEvent(event *events.Event) {
	emoji := getEventEmoji(event)
	severityColor := getSeverityColor(event.Severity)

	timestamp := event.Timestamp.Format("2006-01-02 15:04:05")

	typeColor := color.New(color.FgMagenta)
	eventType := typeColor.Sprint(event.Type)

	ref := event.JobID
	if event.CandidateID != "" {
		ref = event.CandidateID
	}
	if len(ref) > 8 {
		ref = ref[:8]
	}

	// keep the first line near 80 columns
	maxMessageLen := 60 - len(ref) - len(string(event.Type))
	message := truncateString(event.Message, maxMessageLen)

	fmt.Printf("%s [%s] %s %s: %s\n",
		emoji,
		timestamp,
		color.New(color.FgGreen).Sprint(ref),
		eventType,
		severityColor.Sprint(message),
	)

	metadata := extractEventMetadata(event)
	if len(metadata) > 0 {
		gray := color.New(color.FgHiBlack)
		fmt.Printf("  %s\n", gray.Sprint(metadata))
	} else {
		fmt.Println()
	}
}

// getEventEmoji returns the icon for an event type, falling back to severity
func getEventEmoji(event *events.Event) string {
	switch event.Type {
	case events.EventTypeScanStarted:
		return "🔍"
	case events.EventTypeScanCompleted:
		return "✅"
	case events.EventTypeScanSkipped:
		return "⏭️"
	case events.EventTypeCandidateCreated:
		return "🆕"
	case events.EventTypeCandidateUpdated:
		return "🔀"
	case events.EventTypeCandidateAutoConfirmed:
		return "✨"
	case events.EventTypeCandidateReviewed:
		return "📌"
	case events.EventTypeCandidateImported:
		return "📥"
	case events.EventTypeCandidateSkipped:
		return "🙈"
	case events.EventTypeCandidateDeleted:
		return "🗑️"
	case events.EventTypeAutoImportCompleted:
		return "📚"
	case events.EventTypeLibraryFieldUpdated:
		return "✏️"
	case events.EventTypeConflictOpened:
		return "⚖️"
	case events.EventTypeConflictResolved:
		return "🤝"
	case events.EventTypeMergeAISucceeded:
		return "🧠"
	case events.EventTypeMergeMechanical:
		return "🔧"
	case events.EventTypeSettingsUpdated:
		return "📝"
	case events.EventTypeCircuitBreakerStateChange:
		return "🚦"
	case events.EventTypeEventsPruned:
		return "🧹"
	}

	switch event.Severity {
	case events.SeverityInfo:
		return "ℹ️"
	case events.SeverityWarning:
		return "⚠️"
	case events.SeverityError:
		return "❌"
	default:
		return "•"
	}
}

// getSeverityColor returns the color for a severity level
func getSeverityColor(severity events.EventSeverity) *color.Color {
	switch severity {
	case events.SeverityInfo:
		return color.New(color.FgCyan)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	case events.SeverityError:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgWhite)
	}
}

// extractEventMetadata picks a few key data fields per event type and
// returns them pipe-separated, truncated to 70 characters
func extractEventMetadata(event *events.Event) string {
	var fields []string

	switch event.Type {
	case events.EventTypeScanStarted:
		// triggered_by | dev | thresholds
		fields = append(fields, getStringField(event.Data, "triggeredBy", "manual"))
		if getBoolField(event.Data, "developmentMode", false) {
			fields = append(fields, "dev")
		}
		th := getMapField(event.Data, "thresholds")
		fields = append(fields, fmt.Sprintf("score>=%d orgs>=%d",
			getIntField(th, "minScore", 0), getIntField(th, "minOrganizations", 0)))

	case events.EventTypeScanCompleted, events.EventTypeScanFailed:
		// created | updated | unchanged | errors | duration
		stats := getMapField(event.Data, "stats")
		fields = append(fields,
			fmt.Sprintf("%d created", getIntField(stats, "candidatesCreated", 0)),
			fmt.Sprintf("%d updated", getIntField(stats, "candidatesUpdated", 0)),
			fmt.Sprintf("%d unchanged", getIntField(stats, "candidatesUnchanged", 0)),
		)
		if errs := getIntField(stats, "errors", 0); errs > 0 {
			fields = append(fields, fmt.Sprintf("%d errors", errs))
		}
		fields = append(fields, formatDurationMs(getIntField(event.Data, "durationMs", 0)))

	case events.EventTypeCandidateCreated, events.EventTypeCandidateUpdated,
		events.EventTypeCandidateAutoConfirmed, events.EventTypeCandidateReviewed,
		events.EventTypeCandidateImported, events.EventTypeCandidateSkipped, events.EventTypeCandidateDeleted:
		// entity | score | orgs | status | reviewer | library record
		fields = append(fields,
			getStringField(event.Data, "entityType", ""),
			fmt.Sprintf("score %d", getIntField(event.Data, "score", 0)),
			fmt.Sprintf("%d orgs", getIntField(event.Data, "organizationCount", 0)),
			getStringField(event.Data, "status", ""),
			getStringField(event.Data, "reviewedBy", ""),
		)
		if rec := getStringField(event.Data, "importedRecordId", ""); rec != "" {
			fields = append(fields, "→ "+rec)
		}

	case events.EventTypeAutoImportCompleted:
		// imported/processed | failed | min score | ai
		fields = append(fields,
			fmt.Sprintf("%d/%d imported", getIntField(event.Data, "imported", 0), getIntField(event.Data, "processed", 0)),
		)
		if failed := getIntField(event.Data, "failed", 0); failed > 0 {
			fields = append(fields, fmt.Sprintf("%d failed", failed))
		}
		fields = append(fields, fmt.Sprintf("score>=%d", getIntField(event.Data, "minScore", 0)))
		if getBoolField(event.Data, "useAi", false) {
			fields = append(fields, "ai")
		}

	case events.EventTypeLibraryFieldUpdated, events.EventTypeConflictOpened, events.EventTypeConflictResolved:
		// entity:field | confidence | priority | status
		fields = append(fields,
			getStringField(event.Data, "entityType", "")+":"+getStringField(event.Data, "field", ""),
			fmt.Sprintf("%d%%", int(getFloatField(event.Data, "confidence", 0)*100+0.5)),
			getStringField(event.Data, "priority", ""),
			getStringField(event.Data, "status", ""),
		)

	case events.EventTypeMergeAISucceeded, events.EventTypeMergeAIFallback, events.EventTypeMergeMechanical:
		// variants | source | error kind | duration
		fields = append(fields,
			fmt.Sprintf("%d variants", getIntField(event.Data, "variantCount", 0)),
			getStringField(event.Data, "source", ""),
			getStringField(event.Data, "errorKind", ""),
			formatDurationMs(getIntField(event.Data, "durationMs", 0)),
		)

	case events.EventTypeSettingsUpdated:
		fields = append(fields,
			"interval "+getStringField(event.Data, "interval", "?"),
			fmt.Sprintf("ai merge %t", getBoolField(event.Data, "useAiMerge", false)),
		)

	case events.EventTypeCircuitBreakerStateChange:
		fields = append(fields,
			getStringField(event.Data, "from", "?")+" → "+getStringField(event.Data, "to", "?"),
			fmt.Sprintf("%d failures", getIntField(event.Data, "failures", 0)),
		)

	case events.EventTypeEventsPruned:
		fields = append(fields,
			fmt.Sprintf("%s deleted", formatNumber(getIntField(event.Data, "deleted", 0))),
			fmt.Sprintf("retention %dd", getIntField(event.Data, "retentionDays", 0)),
		)
	}

	return truncateString(joinFields(fields), 70)
}

func getStringField(data map[string]interface{}, key, defaultValue string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return defaultValue
}

func getIntField(data map[string]interface{}, key string, defaultValue int) int {
	switch val := data[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	}
	return defaultValue
}

func getFloatField(data map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := data[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

func getBoolField(data map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := data[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getMapField returns a nested object, or nil
func getMapField(data map[string]interface{}, key string) map[string]interface{} {
	m, _ := data[key].(map[string]interface{})
	return m
}

func formatDurationMs(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%.1fm", float64(ms)/60000)
}

func joinFields(fields []string) string {
	nonEmpty := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, " | ")
}

func truncateString(s string, maxLen int) string {
	if maxLen < 4 {
		maxLen = 4
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// formatNumber formats an integer with thousands separators
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s,%03d", formatNumber(n/1000), n%1000)
}
