package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/prlibrary/matching/internal/httpapi"
	"github.com/prlibrary/matching/internal/scheduler"
)

var (
	servePort       int
	serveNoSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scan scheduler",
	Long: `Serve the scan trigger and operator API and, unless disabled, run the
scheduler that starts auto scans when they are due and prunes old events.

Stops gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		port := cfg.HTTPPort
		if servePort > 0 {
			port = servePort
		}
		if cfg.AdminToken == "" {
			logger.Warn().Msg("MATCHING_ADMIN_TOKEN not set, operator routes are disabled")
		}
		if cfg.ScanSecret == "" {
			logger.Warn().Msg("MATCHING_SCAN_SECRET not set, scheduler calls to /api/v1/scan are rejected")
		}

		srv, err := httpapi.NewServer(httpapi.Deps{
			Scanner:      eng.scanner,
			Settings:     eng.settings,
			Reviewer:     eng.reviewer,
			Store:        store,
			Importer:     eng.importer,
			Conflicts:    eng.resolver,
			Counters:     counters,
			BreakerState: eng.breakerState,
		}, logger, httpapi.Options{
			Host:         cfg.HTTPHost,
			Port:         port,
			ScanSecret:   cfg.ScanSecret,
			AdminToken:   cfg.AdminToken,
			ScanDefaults: scanDefaults(),
		})
		if err != nil {
			return err
		}

		if cfg.SchedulerEnabled && !serveNoSchedule {
			sched, err := scheduler.New(eng.scanner, eng.settings, store, eng.emitter, logger, scheduler.Config{
				Spec:        cfg.SchedulerSpec,
				Retention:   cfg.Events,
				ScanOptions: scanDefaults(),
			})
			if err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("%s Listening on %s:%d\n", cyan("▶"), cfg.HTTPHost, port)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides MATCHING_HTTP_PORT)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-scheduler", false, "Serve the API without running scheduled scans")
	rootCmd.AddCommand(serveCmd)
}
