package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/prlibrary/matching/internal/deduplication"
	"github.com/prlibrary/matching/internal/keywords"
	"github.com/prlibrary/matching/internal/types"
)

var candidatesCmd = &cobra.Command{
	Use:     "candidates",
	Aliases: []string{"candidate"},
	Short:   "List, inspect and review matching candidates",
}

// candidateFilterFromFlags reads the shared --type/--status/--org/--limit flags
func candidateFilterFromFlags(cmd *cobra.Command) (types.CandidateFilter, error) {
	entity, _ := cmd.Flags().GetString("type")
	status, _ := cmd.Flags().GetString("status")
	org, _ := cmd.Flags().GetString("org")
	limit, _ := cmd.Flags().GetInt("limit")

	f := types.CandidateFilter{
		EntityType:     types.EntityType(entity),
		Status:         types.CandidateStatus(status),
		OrganizationID: org,
		Limit:          limit,
	}
	if entity != "" && !f.EntityType.IsValid() {
		return f, fmt.Errorf("invalid type %q (contact, company, publication)", entity)
	}
	if status != "" && !f.Status.IsValid() {
		return f, fmt.Errorf("invalid status %q", status)
	}
	if limit < 0 {
		return f, fmt.Errorf("limit cannot be negative")
	}
	return f, nil
}

func addCandidateFilterFlags(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().String("type", "", "Filter by entity type (contact, company, publication)")
	cmd.Flags().String("status", "", "Filter by status (pending, auto_confirmed, manually_confirmed, rejected, imported, skipped)")
	cmd.Flags().String("org", "", "Filter by contributing organization ID")
	cmd.Flags().IntP("limit", "n", defaultLimit, "Maximum number of candidates (0 = all)")
}

var candidatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidates, best score first",
	Run: func(cmd *cobra.Command, args []string) {
		filter, err := candidateFilterFromFlags(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		list, err := store.ListCandidates(cmd.Context(), filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list candidates: %v\n", err)
			os.Exit(1)
		}
		if asJSON {
			printJSON(list)
			return
		}
		if len(list) == 0 {
			fmt.Println("No candidates found")
			return
		}

		for _, c := range list {
			fmt.Printf("%s  %-11s  %3d  %d orgs  %s  %s\n",
				c.ID,
				c.EntityType,
				c.Score,
				c.OrganizationCount,
				statusColor(c.Status)(string(c.Status)),
				truncateString(candidateLabel(c), 40),
			)
		}
	},
}

var candidatesShowCmd = &cobra.Command{
	Use:   "show <candidate-id>",
	Short: "Show a candidate with its variants",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := mustGetCandidate(cmd.Context(), args[0])
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(c)
			return
		}
		printCandidate(c)
	},
}

var candidatesConfirmCmd = &cobra.Command{
	Use:   "confirm <candidate-id>",
	Short: "Confirm a candidate as one real-world entity",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reviewCandidate(cmd.Context(), args[0], true)
	},
}

var candidatesRejectCmd = &cobra.Command{
	Use:   "reject <candidate-id>",
	Short: "Reject a candidate as a false match",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reviewCandidate(cmd.Context(), args[0], false)
	},
}

var candidatesCheckArticleCmd = &cobra.Command{
	Use:   "check-article <candidate-id>",
	Short: "Check whether an article belongs to a company candidate",
	Long: `Check an article against a company candidate's keywords. A company
keyword in the title confirms; a keyword only in the content confirms when the
SEO keywords score high enough.

Example:
  matching candidates check-article <id> --title "Acme opens plant" --keyword acme --keyword plant`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")
		seo, _ := cmd.Flags().GetStringSlice("keyword")
		if title == "" && content == "" {
			fmt.Fprintf(os.Stderr, "Error: --title or --content is required\n")
			os.Exit(1)
		}

		c := mustGetCandidate(cmd.Context(), args[0])
		res, err := deduplication.CheckArticle(c, keywords.Article{Title: title, Content: content}, seo)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		verdict := color.RedString("no")
		if res.ShouldConfirm {
			verdict = color.GreenString("yes")
		}
		fmt.Printf("Confirm:    %s (%s)\n", verdict, res.Reason)
		if res.CompanyMatch.Found {
			fmt.Printf("Matched:    %q (in title: %t)\n", res.CompanyMatch.MatchedKeyword, res.CompanyMatch.InTitle)
		}
		fmt.Printf("SEO score:  %d\n", res.SEOScore)
		if res.Confidence != "" {
			fmt.Printf("Confidence: %s\n", res.Confidence)
		}
	},
}

func mustGetCandidate(ctx context.Context, id string) *types.MatchingCandidate {
	c, err := store.GetCandidate(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Error: candidate %s not found\n", id)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to get candidate: %v\n", err)
		os.Exit(1)
	}
	return c
}

func reviewCandidate(ctx context.Context, id string, confirm bool) {
	reviewer := deduplication.NewReviewer(store, cliEmitter(), logger, 0)

	review := reviewer.Reject
	if confirm {
		review = reviewer.Confirm
	}
	c, err := review(ctx, id, actor())
	switch {
	case errors.Is(err, types.ErrNotFound):
		fmt.Fprintf(os.Stderr, "Error: candidate %s not found\n", id)
		os.Exit(1)
	case errors.Is(err, types.ErrVersionConflict):
		fmt.Fprintf(os.Stderr, "Error: candidate %s changed concurrently, try again\n", id)
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Candidate %s is now %s\n", green("✓"), c.ID, statusColor(c.Status)(string(c.Status)))
}

func statusColor(s types.CandidateStatus) func(a ...interface{}) string {
	switch s {
	case types.StatusAutoConfirmed, types.StatusManuallyConfirmed:
		return color.New(color.FgGreen).SprintFunc()
	case types.StatusRejected:
		return color.New(color.FgRed).SprintFunc()
	case types.StatusImported:
		return color.New(color.FgBlue).SprintFunc()
	case types.StatusSkipped:
		return color.New(color.FgHiBlack).SprintFunc()
	default:
		return color.New(color.FgYellow).SprintFunc()
	}
}

// candidateLabel names a candidate by its merged record, else its match key
func candidateLabel(c *types.MatchingCandidate) string {
	if c.Merged != nil {
		if name := c.Merged.Name(); name != "" {
			return name
		}
	}
	return c.MatchKey
}

func printCandidate(c *types.MatchingCandidate) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", cyan("Candidate"), c.ID)
	fmt.Printf("  Type:       %s\n", c.EntityType)
	fmt.Printf("  Match key:  %s\n", c.MatchKey)
	fmt.Printf("  Status:     %s\n", statusColor(c.Status)(string(c.Status)))
	b := c.ScoreBreakdown
	fmt.Printf("  Score:      %d (orgs %d, media %d, domain %d, phone %d, beats %d, social %d)\n",
		c.Score, b.Organizations, b.MediaProfile, b.VerifiedDomain, b.Phone, b.Beats, b.Social)
	if c.Confidence != "" {
		fmt.Printf("  Confidence: %s\n", c.Confidence)
	}
	fmt.Printf("  Version:    %d\n", c.Version)
	if c.ReviewedBy != "" && c.ReviewedAt != nil {
		fmt.Printf("  Reviewed:   %s by %s\n", c.ReviewedAt.Local().Format("2006-01-02 15:04"), c.ReviewedBy)
	}
	if c.ReviewNotes != "" {
		fmt.Printf("  Notes:      %s\n", c.ReviewNotes)
	}
	if c.ImportedRecordID != "" {
		fmt.Printf("  Library:    %s (imported by %s)\n", c.ImportedRecordID, c.ImportedBy)
	}

	if c.Merged != nil {
		fmt.Printf("\n%s (%s)\n", cyan("Merged record"), c.MergeSource)
		printContactData(*c.Merged, "  ")
	}
	if c.Monitoring != nil {
		m := c.Monitoring
		fmt.Printf("\n%s\n", cyan("Monitoring"))
		fmt.Printf("  Enabled: %t, frequency %s, %d feeds, %d articles found\n",
			m.IsEnabled, m.CheckFrequency, len(m.RSSFeedURLs), m.TotalArticlesFound)
		if m.WebsiteURL != nil {
			fmt.Printf("  Website: %s\n", *m.WebsiteURL)
		}
	}

	fmt.Printf("\n%s (%d)\n", cyan("Variants"), len(c.Variants))
	for _, v := range c.Variants {
		org := v.OrganizationID
		if v.OrganizationName != "" {
			org = fmt.Sprintf("%s (%s)", v.OrganizationName, v.OrganizationID)
		}
		fmt.Printf("  %s  %s\n", color.New(color.FgGreen).Sprint(org), v.SourceEntityID)
		printContactData(v.Data, "    ")
	}
}

func printContactData(d types.ContactData, indent string) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	line := func(label, value string) {
		if value != "" {
			fmt.Printf("%s%s %s\n", indent, gray(label+":"), value)
		}
	}
	line("name", d.Name())
	line("email", d.PrimaryEmail())
	line("phone", d.PrimaryPhone())
	line("position", d.Position)
	line("company", d.CompanyName)
	line("website", d.Website)
	if len(d.Beats) > 0 {
		line("beats", joinFields(d.Beats))
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	addCandidateFilterFlags(candidatesListCmd, 50)
	candidatesListCmd.Flags().Bool("json", false, "Output JSON")
	candidatesShowCmd.Flags().Bool("json", false, "Output JSON")

	candidatesCheckArticleCmd.Flags().String("title", "", "Article title")
	candidatesCheckArticleCmd.Flags().String("content", "", "Article content")
	candidatesCheckArticleCmd.Flags().StringSlice("keyword", nil, "SEO keyword (repeatable)")

	candidatesCmd.AddCommand(candidatesListCmd, candidatesShowCmd, candidatesConfirmCmd,
		candidatesRejectCmd, candidatesCheckArticleCmd)
	rootCmd.AddCommand(candidatesCmd)
}
