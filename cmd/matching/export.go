package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/prlibrary/matching/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export candidates to an Excel workbook",
	Long: `Write the selected candidates and their variants to an .xlsx workbook
with one sheet for candidates and one for variants.

Examples:
  matching export -o candidates.xlsx
  matching export -o pending.xlsx --status pending --type contact`,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		filter, err := candidateFilterFromFlags(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		list, err := store.ListCandidates(cmd.Context(), filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list candidates: %v\n", err)
			os.Exit(1)
		}

		f, err := os.Create(output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := export.WriteCandidates(f, list); err != nil {
			f.Close()
			fmt.Fprintf(os.Stderr, "Error: failed to write workbook: %v\n", err)
			os.Exit(1)
		}
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Exported %d candidates to %s\n", green("✓"), len(list), output)
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "candidates.xlsx", "Output file")
	addCandidateFilterFlags(exportCmd, 0)
	rootCmd.AddCommand(exportCmd)
}
