package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gomapp/trialfield/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle against the trials service",
	Long: `Run one sync cycle: upload new trials, upload growth assessments,
then download remote changes since the last confirmed sync.

Each phase runs even when an earlier one fails, so a flaky connection
still makes as much progress as it can.

Example usage:
  trialfield sync`,
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		user, err := db.ActiveUser()
		if err != nil {
			fatal("no active user; create one with: trialfield user create")
		}

		engine := sync.New(db, sync.Config{
			BaseURL: cfg.APIBaseURL,
			Timeout: cfg.HTTPTimeout,
		}, logger)

		report := engine.Run(cmd.Context(), user.Username)

		for _, phase := range report.Phases {
			status := "ok"
			if phase.Err != nil {
				status = phase.Err.Error()
			}
			fmt.Printf("  %-20s %3d records  %s\n", phase.Phase, phase.Count, status)
		}
		fmt.Printf("Sync finished in %s\n", report.Duration.Round(time.Millisecond))

		if !report.Ok() {
			if sync.IsRetryable(report.Err()) {
				fmt.Println("Some phases failed; pending records stay queued for the next sync.")
			}
			fatal("sync incomplete")
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
