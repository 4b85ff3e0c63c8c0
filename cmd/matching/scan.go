package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/prlibrary/matching/internal/deduplication"
	"github.com/prlibrary/matching/internal/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one matching scan now",
	Long: `Scan every organization's contacts, companies and publications, and
create or update matching candidates for entities several organizations share.

Development mode lowers the thresholds so small datasets produce candidates.

Examples:
  matching scan
  matching scan --dev
  matching scan --min-score 50 --min-orgs 3
  matching scan --org agency-nord --org agency-sued`,
	Run: func(cmd *cobra.Command, args []string) {
		dev, _ := cmd.Flags().GetBool("dev")
		minScore, _ := cmd.Flags().GetInt("min-score")
		minOrgs, _ := cmd.Flags().GetInt("min-orgs")
		orgs, _ := cmd.Flags().GetStringSlice("org")
		ctx := cmd.Context()

		eng, err := newEngine(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.Close()

		opts := scanDefaults()
		opts.DevelopmentMode = dev
		opts.TriggeredBy = types.TriggerManual
		opts.OrganizationIDs = orgs
		if minScore > 0 {
			opts.MinScore = minScore
		}
		if minOrgs > 0 {
			opts.MinOrganizations = minOrgs
		}

		job, err := eng.scanner.Scan(ctx, opts)
		if errors.Is(err, deduplication.ErrScanInProgress) {
			fmt.Fprintf(os.Stderr, "%s\n", color.YellowString("Another scan is in progress, try again later"))
			os.Exit(1)
		}
		if job != nil {
			printJob(job)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: scan failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	scanCmd.Flags().Bool("dev", false, "Development mode (lower thresholds)")
	scanCmd.Flags().Int("min-score", 0, "Minimum candidate score (overrides the mode default)")
	scanCmd.Flags().Int("min-orgs", 0, "Minimum distinct organizations (overrides the mode default)")
	scanCmd.Flags().StringSlice("org", nil, "Restrict the scan to these organization IDs (repeatable)")
	rootCmd.AddCommand(scanCmd)
}
