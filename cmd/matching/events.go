package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/prlibrary/matching/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect and prune stored events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show recent events",
	Long: `Show stored events, newest first.

Examples:
  matching events list --type scan_failed
  matching events list --job <job-id>
  matching events list --since 24h --severity warning`,
	Run: func(cmd *cobra.Command, args []string) {
		eventType, _ := cmd.Flags().GetString("type")
		severity, _ := cmd.Flags().GetString("severity")
		jobID, _ := cmd.Flags().GetString("job")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := events.EventFilter{
			Type:     events.EventType(eventType),
			Severity: events.EventSeverity(severity),
			JobID:    jobID,
			Limit:    limit,
		}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		list, err := store.GetEvents(cmd.Context(), filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get events: %v\n", err)
			os.Exit(1)
		}
		if len(list) == 0 {
			fmt.Println("No events found")
			return
		}
		for _, ev := range list {
			displayEvent(ev)
		}
	},
}

var eventsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stored event counts by type and severity",
	Run: func(cmd *cobra.Command, args []string) {
		counts, err := store.GetEventCounts(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get event counts: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("%s %s events\n\n", cyan("Total:"), formatNumber(counts.TotalEvents))
		printCounts("By type", counts.EventsByType)
		printCounts("By severity", counts.EventsBySeverity)
	},
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Printf("%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-32s %s\n", k, formatNumber(counts[k]))
	}
	fmt.Println()
}

var eventsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete events older than the retention period",
	Long: `Delete stored events older than the retention period.

The retention period and batch size come from MATCHING_EVENT_RETENTION_DAYS
and MATCHING_EVENT_CLEANUP_BATCH_SIZE. The serve command runs the same
cleanup on MATCHING_EVENT_CLEANUP_SCHEDULE.

Examples:
  matching events cleanup                 # Run cleanup with the configured retention
  matching events cleanup --days 7        # Keep one week
  matching events cleanup --dry-run       # Show what would be deleted`,
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		days, _ := cmd.Flags().GetInt("days")

		retention := cfg.Events
		if days > 0 {
			retention.RetentionDays = days
		}
		if err := retention.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid retention: %v\n", err)
			os.Exit(1)
		}
		ctx := cmd.Context()

		fmt.Printf("Event Retention Configuration:\n")
		fmt.Printf("  Retention: %d days\n", retention.RetentionDays)
		fmt.Printf("  Batch size: %d events/statement\n", retention.CleanupBatchSize)
		if dryRun {
			fmt.Printf("\n%s\n", color.YellowString("DRY RUN MODE - No events will be deleted"))
		}
		fmt.Println()

		before, err := store.GetEventCounts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get event counts: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Current state:\n")
		fmt.Printf("  Total events: %s\n", formatNumber(before.TotalEvents))
		fmt.Println()

		if dryRun {
			cutoff := time.Now().AddDate(0, 0, -retention.RetentionDays)
			kept, err := store.GetEvents(ctx, events.EventFilter{Since: cutoff})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to get events: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Would delete %s events older than %s\n",
				formatNumber(before.TotalEvents-len(kept)), cutoff.Format("2006-01-02 15:04"))
			fmt.Println("Dry run complete. Use without --dry-run to perform cleanup.")
			return
		}

		start := time.Now()
		fmt.Printf("Running time-based cleanup (>%d days)...\n", retention.RetentionDays)
		deleted, err := store.CleanupEventsByAge(ctx, retention.RetentionDays, retention.CleanupBatchSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cleanup failed: %v\n", err)
			os.Exit(1)
		}

		after, err := store.GetEventCounts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get event counts: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("\n%s Deleted %s events in %v\n", green("✓"), formatNumber(deleted),
			time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Remaining events: %s\n", formatNumber(after.TotalEvents))
	},
}

func init() {
	eventsListCmd.Flags().String("type", "", "Filter by event type")
	eventsListCmd.Flags().String("severity", "", "Filter by severity (info, warning, error)")
	eventsListCmd.Flags().String("job", "", "Filter by scan job ID")
	eventsListCmd.Flags().Duration("since", 0, "Only events newer than this (e.g. 24h)")
	eventsListCmd.Flags().IntP("limit", "n", 50, "Maximum number of events")

	eventsCleanupCmd.Flags().Bool("dry-run", false, "Show what would be deleted without deleting")
	eventsCleanupCmd.Flags().Int("days", 0, "Retention in days (overrides MATCHING_EVENT_RETENTION_DAYS)")

	eventsCmd.AddCommand(eventsListCmd, eventsStatsCmd, eventsCleanupCmd)
	rootCmd.AddCommand(eventsCmd)
}
