package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/listsync/internal/core/ports/driving"
	"github.com/custodia-labs/listsync/internal/logger"
)

var (
	serveInterval time.Duration
	serveAddr     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled pipeline runs and serve status over HTTP",
	Long: `Runs the full pipeline on the configured interval and exposes
/healthz, /status, /runs and /dictionary/gaps until interrupted.

A scheduled run that finds the lease held by another process is skipped.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 0, "pipeline interval, e.g. 6h (default from config)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "status server listen address (default from config)")
	addNormalizeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if newScheduler == nil || serveHTTP == nil {
		return errors.New("serve mode not configured")
	}
	if serveInterval < 0 {
		return errors.New("--interval must not be negative")
	}

	addr := serveAddr
	if addr == "" && settingsService != nil {
		if settings, err := settingsService.Get(); err == nil {
			addr = settings.Server.Addr
		}
	}
	if addr == "" {
		return errors.New("no listen address: set --addr or server.addr")
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sched := newScheduler(driving.RunOptions{Enrich: enrichOptionsFromFlags()}, serveInterval)

	// Whichever stops first stops the other.
	errCh := make(chan error, 2)
	go func() { errCh <- serveHTTP(ctx, addr) }()
	go func() { errCh <- sched.Start(ctx) }()
	cmd.Printf("Serving on %s (Ctrl+C to stop)\n", addr)

	first := <-errCh
	cancel()
	if err := sched.Stop(); err != nil {
		logger.Warn("Stopping scheduler: %v", err)
	}
	second := <-errCh

	for _, err := range []error{first, second} {
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("serve failed: %w", err)
		}
	}
	cmd.Println("Stopped.")
	return nil
}
