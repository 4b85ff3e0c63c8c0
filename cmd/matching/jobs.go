package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/prlibrary/matching/internal/types"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show scan job history",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent scan jobs",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		jobs, err := store.ListScanJobs(cmd.Context(), limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list jobs: %v\n", err)
			os.Exit(1)
		}
		if len(jobs) == 0 {
			fmt.Println("No scan jobs yet")
			return
		}

		for _, j := range jobs {
			fmt.Printf("%s  %s  %-9s  %-9s  +%d ~%d =%d  %s\n",
				j.ID,
				j.StartedAt.Local().Format("2006-01-02 15:04"),
				jobStatusColor(j.Status)(string(j.Status)),
				j.TriggeredBy,
				j.Stats.CandidatesCreated, j.Stats.CandidatesUpdated, j.Stats.CandidatesUnchanged,
				formatDurationMs(int(j.DurationMs)),
			)
		}
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one scan job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		job, err := store.GetScanJob(cmd.Context(), args[0])
		if errors.Is(err, types.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Error: job %s not found\n", args[0])
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get job: %v\n", err)
			os.Exit(1)
		}
		printJob(job)
	},
}

func jobStatusColor(s types.JobStatus) func(a ...interface{}) string {
	switch s {
	case types.JobSuccess:
		return color.New(color.FgGreen).SprintFunc()
	case types.JobFailed:
		return color.New(color.FgRed).SprintFunc()
	default:
		return color.New(color.FgYellow).SprintFunc()
	}
}

// printJob prints a job with its statistics
func printJob(j *types.ScanJob) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", cyan("Scan job"), j.ID)
	fmt.Printf("  Status:       %s\n", jobStatusColor(j.Status)(string(j.Status)))
	fmt.Printf("  Triggered by: %s\n", j.TriggeredBy)
	if j.DevelopmentMode {
		fmt.Printf("  Mode:         %s\n", color.YellowString("development"))
	}
	fmt.Printf("  Thresholds:   score >= %d, organizations >= %d\n",
		j.Thresholds.MinScore, j.Thresholds.MinOrganizations)
	fmt.Printf("  Started:      %s\n", j.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if j.CompletedAt != nil {
		fmt.Printf("  Duration:     %s\n", formatDurationMs(int(j.DurationMs)))
	}
	if j.Error != "" {
		fmt.Printf("  Error:        %s\n", color.RedString(j.Error))
	}

	s := j.Stats
	fmt.Printf("\n  Scanned:   %d organizations, %d contacts, %d companies, %d publications\n",
		s.OrganizationsScanned, s.ContactsScanned, s.CompaniesScanned, s.PublicationsScanned)
	fmt.Printf("  Candidates: %d created, %d updated, %d unchanged\n",
		s.CandidatesCreated, s.CandidatesUpdated, s.CandidatesUnchanged)
	fmt.Printf("  Skipped:   %d references, %d without email, %d below threshold\n",
		s.SkippedReferences, s.SkippedNoEmail, s.SkippedBelowThreshold)
	if s.FieldsUpdated > 0 || s.ConflictsOpened > 0 {
		fmt.Printf("  Library:   %d fields updated, %d conflicts opened\n", s.FieldsUpdated, s.ConflictsOpened)
	}
	if s.Errors > 0 {
		fmt.Printf("  Errors:    %s\n", color.RedString("%d", s.Errors))
	}
}

func init() {
	jobsListCmd.Flags().IntP("limit", "n", 20, "Maximum number of jobs")
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}
