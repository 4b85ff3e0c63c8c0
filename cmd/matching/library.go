package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/prlibrary/matching/internal/deduplication"
	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/types"
)

// cliEmitter logs and stores events of the short-lived review commands
func cliEmitter() events.Emitter {
	return events.Multi{
		events.LogEmitter{Logger: logger},
		events.StoreEmitter{Store: store, Logger: logger},
	}
}

var candidatesImportCmd = &cobra.Command{
	Use:   "import [candidate-id]",
	Short: "Import candidates into the shared library",
	Long: `Import one candidate, or with --auto every pending candidate scoring at
least --min-score, into the shared library.

A single import starts from the recommended variant unless --variant picks
another one; --set overrides individual fields.

Examples:
  matching candidates import <id> --variant 1 --set position="Chefredakteurin"
  matching candidates import --auto --min-score 85 --ai`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		auto, _ := cmd.Flags().GetBool("auto")
		if auto == (len(args) == 1) {
			fmt.Fprintf(os.Stderr, "Error: give either a candidate ID or --auto\n")
			os.Exit(1)
		}

		eng, err := newEngine(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.Close()

		if auto {
			autoImport(cmd, eng.importer)
			return
		}
		importOne(cmd, eng.importer, args[0])
	},
}

func importOne(cmd *cobra.Command, importer *deduplication.Importer, id string) {
	variant, _ := cmd.Flags().GetInt("variant")
	sets, _ := cmd.Flags().GetStringArray("set")
	overrides, err := parseOverrides(sets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	res, err := importer.Import(cmd.Context(), deduplication.ImportRequest{
		CandidateID:  id,
		VariantIndex: variant,
		Overrides:    overrides,
		Actor:        actor(),
	})
	switch {
	case errors.Is(err, types.ErrNotFound):
		fmt.Fprintf(os.Stderr, "Error: candidate %s not found\n", id)
		os.Exit(1)
	case errors.Is(err, deduplication.ErrAlreadyImported):
		fmt.Fprintf(os.Stderr, "Error: candidate %s is already in the library\n", id)
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Candidate %s imported as %s\n", green("✓"), res.Candidate.ID, res.RecordID)
	if res.CompanyID != "" {
		fmt.Printf("  Company:      %s\n", res.CompanyID)
	}
	if len(res.PublicationIDs) > 0 {
		fmt.Printf("  Publications: %s\n", strings.Join(res.PublicationIDs, ", "))
	}
}

func autoImport(cmd *cobra.Command, importer *deduplication.Importer) {
	minScore, _ := cmd.Flags().GetInt("min-score")
	useAI, _ := cmd.Flags().GetBool("ai")
	limit, _ := cmd.Flags().GetInt("limit")
	if minScore < 0 || minScore > 100 {
		fmt.Fprintf(os.Stderr, "Error: --min-score must be between 0 and 100\n")
		os.Exit(1)
	}

	stats, err := importer.AutoImport(cmd.Context(), deduplication.AutoImportOptions{
		MinScore: minScore,
		UseAI:    useAI,
		Actor:    actor(),
		Limit:    limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		printJSON(stats)
		return
	}

	fmt.Printf("Processed: %d\n", stats.Processed)
	fmt.Printf("Imported:  %s\n", color.GreenString("%d", stats.Imported))
	if stats.Failed > 0 {
		fmt.Printf("Failed:    %s\n", color.RedString("%d", stats.Failed))
		for _, e := range stats.Errors {
			fmt.Printf("  %s\n", e)
		}
		os.Exit(1)
	}
}

// parseOverrides turns repeated field=value flags into a map
func parseOverrides(sets []string) (map[string]string, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(sets))
	for _, s := range sets {
		field, value, ok := strings.Cut(s, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --set %q (want field=value)", s)
		}
		if _, dup := out[field]; dup {
			return nil, fmt.Errorf("field %q set twice", field)
		}
		out[field] = value
	}
	return out, nil
}

var candidatesSkipCmd = &cobra.Command{
	Use:   "skip <candidate-id>",
	Short: "Set a candidate aside without importing it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		reviewer := deduplication.NewReviewer(store, cliEmitter(), logger, 0)
		c, err := reviewer.Skip(cmd.Context(), args[0], actor(), reason)
		exitOnReviewError(args[0], err)
		fmt.Printf("%s Candidate %s is now %s\n", color.GreenString("✓"), c.ID, statusColor(c.Status)(string(c.Status)))
	},
}

var candidatesDeleteCmd = &cobra.Command{
	Use:   "delete <candidate-id>",
	Short: "Delete a candidate that was not imported",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reviewer := deduplication.NewReviewer(store, cliEmitter(), logger, 0)
		exitOnReviewError(args[0], reviewer.Delete(cmd.Context(), args[0], actor()))
		fmt.Printf("%s Candidate %s deleted\n", color.GreenString("✓"), args[0])
	},
}

func exitOnReviewError(id string, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, types.ErrNotFound):
		fmt.Fprintf(os.Stderr, "Error: candidate %s not found\n", id)
	case errors.Is(err, deduplication.ErrAlreadyImported):
		fmt.Fprintf(os.Stderr, "Error: candidate %s is already in the library\n", id)
	case errors.Is(err, types.ErrVersionConflict):
		fmt.Fprintf(os.Stderr, "Error: candidate %s changed concurrently, try again\n", id)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

var candidatesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show candidate counts, score distribution and top organizations",
	Run: func(cmd *cobra.Command, args []string) {
		stats, err := deduplication.Analytics(cmd.Context(), store)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(stats)
			return
		}
		printCandidateStats(stats)
	},
}

func printCandidateStats(stats *deduplication.CandidateStats) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("%s %s candidates, average score %d, %.1f%% imported\n",
		cyan("Candidates:"), formatNumber(stats.Total), stats.AverageScore, stats.ImportRate*100)

	fmt.Printf("\n%s\n", cyan("By status"))
	for _, s := range types.CandidateStatuses {
		fmt.Printf("  %-20s %s\n", statusColor(s)(string(s)), formatNumber(stats.ByStatus[s]))
	}

	fmt.Printf("\n%s\n", cyan("Score distribution"))
	for _, b := range stats.ScoreDistribution {
		fmt.Printf("  %3d-%-3d  %s\n", b.Min, b.Max, formatNumber(b.Count))
	}

	if len(stats.TopOrganizations) > 0 {
		fmt.Printf("\n%s\n", cyan("Top organizations"))
		for _, o := range stats.TopOrganizations {
			name := o.OrganizationID
			if o.OrganizationName != "" {
				name = fmt.Sprintf("%s (%s)", o.OrganizationName, o.OrganizationID)
			}
			fmt.Printf("  %-40s %5s  avg %d\n", truncateString(name, 40), formatNumber(o.CandidateCount), o.AverageScore)
		}
	}

	if j := stats.LastScan; j != nil {
		fmt.Printf("\n%s %s %s at %s\n", cyan("Last scan:"), j.ID, j.Status, j.StartedAt.Local().Format("2006-01-02 15:04"))
	}
}

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	Aliases: []string{"conflict"},
	Short:   "Review field conflicts on shared library records",
}

func newResolver() *deduplication.Resolver {
	return deduplication.NewResolver(store, cfg.LibraryOrgID, cliEmitter(), logger)
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open conflicts, highest priority first",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		list, err := newResolver().OpenConflicts(cmd.Context(), limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list conflicts: %v\n", err)
			os.Exit(1)
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(list)
			return
		}
		if len(list) == 0 {
			fmt.Println("No open conflicts")
			return
		}
		for _, c := range list {
			printConflict(c)
		}
	},
}

func printConflict(c *types.FieldConflict) {
	priority := color.New(color.FgYellow).SprintFunc()
	if c.Priority == types.PriorityHigh {
		priority = color.New(color.FgRed).SprintFunc()
	}
	fmt.Printf("%s  %-6s  %s %s  %s\n", c.ID, priority(string(c.Priority)), c.EntityType,
		truncateString(c.EntityName, 30), color.New(color.FgMagenta).Sprint(c.Field))
	fmt.Printf("  %q → %q (%d/%d variants, current value %s, %d days old)\n",
		c.CurrentValue, c.SuggestedValue, c.Evidence.MajorityCount, c.Evidence.TotalCount,
		c.Evidence.CurrentValueSource, c.Evidence.CurrentValueAgeDays)

	values := make([]string, 0, len(c.Evidence.Variants))
	for _, v := range c.Evidence.Variants {
		values = append(values, v.OrganizationID+"="+v.Value)
	}
	sort.Strings(values)
	fmt.Printf("  %s\n", color.New(color.FgHiBlack).Sprint(truncateString(strings.Join(values, ", "), 76)))
}

var conflictsApproveCmd = &cobra.Command{
	Use:   "approve <conflict-id>",
	Short: "Apply the suggested value to the library record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		decideConflict(cmd, args[0], true)
	},
}

var conflictsRejectCmd = &cobra.Command{
	Use:   "reject <conflict-id>",
	Short: "Keep the current value of the library record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		decideConflict(cmd, args[0], false)
	},
}

func decideConflict(cmd *cobra.Command, id string, approve bool) {
	notes, _ := cmd.Flags().GetString("notes")
	r := newResolver()
	decide := r.Reject
	if approve {
		decide = r.Approve
	}
	c, err := decide(cmd.Context(), id, actor(), notes)
	switch {
	case errors.Is(err, types.ErrNotFound):
		fmt.Fprintf(os.Stderr, "Error: conflict %s not found\n", id)
		os.Exit(1)
	case errors.Is(err, deduplication.ErrConflictClosed):
		fmt.Fprintf(os.Stderr, "Error: conflict %s was already reviewed\n", id)
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s Conflict %s %s (%s: %q)\n", color.GreenString("✓"), c.ID, c.Status, c.Field, c.SuggestedValue)
}

func init() {
	candidatesImportCmd.Flags().Int("variant", -1, "Variant index to import (default: recommended variant)")
	candidatesImportCmd.Flags().StringArray("set", nil, "Override a field as field=value (repeatable)")
	candidatesImportCmd.Flags().Bool("auto", false, "Import every pending candidate above --min-score")
	candidatesImportCmd.Flags().Int("min-score", 0, "Minimum score for --auto (default: MATCHING_AUTO_IMPORT_MIN_SCORE)")
	candidatesImportCmd.Flags().Bool("ai", false, "Merge variants with AI during --auto")
	candidatesImportCmd.Flags().IntP("limit", "n", 0, "Maximum candidates for --auto (default: MATCHING_AUTO_IMPORT_LIMIT)")
	candidatesImportCmd.Flags().Bool("json", false, "Output JSON")

	candidatesSkipCmd.Flags().String("reason", "", "Why the candidate is set aside")
	candidatesStatsCmd.Flags().Bool("json", false, "Output JSON")

	candidatesCmd.AddCommand(candidatesImportCmd, candidatesSkipCmd, candidatesDeleteCmd, candidatesStatsCmd)

	conflictsListCmd.Flags().IntP("limit", "n", 50, "Maximum number of conflicts (0 = all)")
	conflictsListCmd.Flags().Bool("json", false, "Output JSON")
	conflictsApproveCmd.Flags().String("notes", "", "Review notes")
	conflictsRejectCmd.Flags().String("notes", "", "Review notes")

	conflictsCmd.AddCommand(conflictsListCmd, conflictsApproveCmd, conflictsRejectCmd)
	rootCmd.AddCommand(conflictsCmd)
}
