package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/prlibrary/matching/internal/events"
	"github.com/prlibrary/matching/internal/settings"
	"github.com/prlibrary/matching/internal/types"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the global matching settings",
}

func newSettingsService() *settings.Service {
	emitter := events.Multi{
		events.LogEmitter{Logger: logger},
		events.StoreEmitter{Store: store, Logger: logger},
	}
	return settings.NewService(store, emitter, logger)
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current settings",
	Run: func(cmd *cobra.Command, args []string) {
		printSettings(newSettingsService().Get(cmd.Context()))
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the settings",
	Long: `Change the AI merge switch and the auto-scan interval. Omitted flags keep
their current value. Changing the interval recomputes the next run.

Examples:
  matching settings set --interval daily
  matching settings set --ai-merge=false
  matching settings set --interval disabled`,
	Run: func(cmd *cobra.Command, args []string) {
		var u settings.Update
		if cmd.Flags().Changed("ai-merge") {
			v, _ := cmd.Flags().GetBool("ai-merge")
			u.UseAIMerge = &v
		}
		if cmd.Flags().Changed("interval") {
			s, _ := cmd.Flags().GetString("interval")
			interval := types.ScanInterval(s)
			if !interval.IsValid() {
				fmt.Fprintf(os.Stderr, "Error: invalid interval %q (disabled, daily, weekly, monthly)\n", s)
				os.Exit(1)
			}
			u.Interval = &interval
		}
		if u.UseAIMerge == nil && u.Interval == nil {
			fmt.Fprintf(os.Stderr, "Error: nothing to change (use --ai-merge or --interval)\n")
			os.Exit(1)
		}

		st, err := newSettingsService().Update(cmd.Context(), u, actor())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to update settings: %v\n", err)
			os.Exit(1)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Settings updated\n\n", green("✓"))
		printSettings(*st)
	},
}

func printSettings(st types.GlobalSettings) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("%s\n", cyan("Matching settings"))
	fmt.Printf("  AI merge:      %s\n", strconv.FormatBool(st.UseAIMerge))
	fmt.Printf("  Auto scan:     %s (%s)\n", strconv.FormatBool(st.AutoScan.Enabled), st.AutoScan.Interval)
	if st.AutoScan.LastRun != nil {
		fmt.Printf("  Last run:      %s\n", st.AutoScan.LastRun.Local().Format("2006-01-02 15:04"))
	}
	if st.AutoScan.NextRun != nil {
		fmt.Printf("  Next run:      %s\n", st.AutoScan.NextRun.Local().Format("2006-01-02 15:04"))
	}
	if st.UpdatedBy != "" {
		fmt.Printf("  Updated:       %s by %s\n", st.UpdatedAt.Local().Format("2006-01-02 15:04"), st.UpdatedBy)
	}
}

func init() {
	settingsSetCmd.Flags().Bool("ai-merge", false, "Merge variants with the AI provider")
	settingsSetCmd.Flags().String("interval", "", "Auto-scan interval (disabled, daily, weekly, monthly)")
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
