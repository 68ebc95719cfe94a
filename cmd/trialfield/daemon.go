package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gomapp/trialfield/internal/daemon"
	"github.com/gomapp/trialfield/internal/dashboard"
	"github.com/gomapp/trialfield/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon with the live dashboard",
	Long: `Run the background sync daemon. A sync cycle runs immediately and then
on every interval; the WebSocket dashboard broadcasts each cycle's
outcome along with the local backlog.

WebSocket messages include:
- trial_update: Trial created or updated by a sync download
- assessment_update: Growth assessment changed
- sync_complete: Sync cycle finished
- stats: Store statistics (total, pending uploads)

Example usage:
  trialfield daemon
  trialfield daemon --port 9000

Connect with a WebSocket client:
  ws://localhost:8090/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.DashboardPort
		}

		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: logger.Named("dashboard"),
		})
		if err := server.Start(); err != nil {
			fatal("failed to start dashboard: %v", err)
		}

		engine := sync.New(db, sync.Config{
			BaseURL: cfg.APIBaseURL,
			Timeout: cfg.HTTPTimeout,
		}, logger.Named("sync"))
		engine.SetNotifier(dashboard.NewHandler(server, db))

		d, err := daemon.New(db, engine, &daemon.Config{
			SyncInterval: cfg.SyncInterval,
			Logger:       logger.Named("daemon"),
		})
		if err != nil {
			fatal("failed to create daemon: %v", err)
		}

		fmt.Printf("Dashboard: http://localhost:%d (ws://localhost:%d/ws)\n", port, port)
		fmt.Printf("Syncing with %s every %s\n", cfg.APIBaseURL, cfg.SyncInterval)
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fatal("daemon error: %v", err)
		}

		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during dashboard shutdown: %v\n", err)
		}
	},
}

func init() {
	daemonCmd.Flags().IntP("port", "p", 0, "Dashboard port (default from config)")
	rootCmd.AddCommand(daemonCmd)
}
