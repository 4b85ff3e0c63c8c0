package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/prlibrary/matching/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixtures.yaml>",
	Short: "Load organizations and their records from a YAML file",
	Long: `Upsert organizations with their contacts, companies and publications
from a YAML fixture file. Loading the same file twice leaves the data unchanged.

Example:
  matching seed internal/seed/testdata/fixtures.yaml && matching scan --dev`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fx, err := seed.LoadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		res, err := seed.Apply(cmd.Context(), store, fx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: seeding stopped after %s: %v\n", res, err)
			os.Exit(1)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Seeded %s\n", green("✓"), res)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
