package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
)

var (
	startDate         string
	maxDates          int
	snapshotMode      bool
	maxPages          int
	maxIterations     int
	skipNormalization bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch catalog changes into the raw store",
	Long: `Walks the catalog change feed from the stored cursor (or --start-date)
up to yesterday and upserts every change into the raw store.

With --snapshot the full offer listing is paged instead; when every page
commits, records missing from the snapshot are soft-deleted.`,
	Args: cobra.NoArgs,
	RunE: runSyncCmd,
}

var normalizeCmd = &cobra.Command{
	Use:     "normalize",
	Aliases: []string{"normalise"},
	Short:   "Normalise raw records and enrich the dictionary",
	Long: `Normalises every pending raw record against the current dictionary,
then translates untranslated tokens with the configured provider and
re-normalises until no gaps remain or --max-iterations is reached.`,
	Args: cobra.NoArgs,
	RunE: runNormalizeCmd,
}

var fullRunCmd = &cobra.Command{
	Use:   "full-run",
	Short: "Sync, then normalise and enrich",
	Args:  cobra.NoArgs,
	RunE:  runFullRunCmd,
}

func init() {
	addSyncFlags(syncCmd)
	addNormalizeFlags(normalizeCmd)
	addSyncFlags(fullRunCmd)
	addNormalizeFlags(fullRunCmd)
	fullRunCmd.Flags().BoolVar(&skipNormalization, "skip-normalization", false, "stop after the sync stage")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(fullRunCmd)
}

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&startDate, "start-date", "", "process changes from this date (YYYY-MM-DD) instead of the cursor")
	cmd.Flags().IntVar(&maxDates, "max-dates", 0, "limit the number of dates processed")
	cmd.Flags().BoolVar(&snapshotMode, "snapshot", false, "page the full offer listing instead of the change feed")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "limit snapshot pages (disables the missing-record sweep)")
}

func addNormalizeFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per normalisation batch")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "enrichment iteration cap")
	cmd.Flags().StringVar(&providerFlag, "translation-provider", "",
		"translation provider: free-web, deepl (provider-a), yandex (provider-b) or openai")
}

func runSyncCmd(cmd *cobra.Command, _ []string) error {
	syncOpts, err := syncOptionsFromFlags()
	if err != nil {
		return err
	}
	return executeRun(cmd, driving.RunOptions{SkipNormalization: true, Sync: syncOpts})
}

func runNormalizeCmd(cmd *cobra.Command, _ []string) error {
	return executeRun(cmd, driving.RunOptions{SkipSync: true, Enrich: enrichOptionsFromFlags()})
}

func runFullRunCmd(cmd *cobra.Command, _ []string) error {
	syncOpts, err := syncOptionsFromFlags()
	if err != nil {
		return err
	}
	return executeRun(cmd, driving.RunOptions{
		SkipNormalization: skipNormalization,
		Sync:              syncOpts,
		Enrich:            enrichOptionsFromFlags(),
	})
}

func syncOptionsFromFlags() (driving.SyncOptions, error) {
	if maxDates < 0 || maxPages < 0 {
		return driving.SyncOptions{}, fmt.Errorf("%w: --max-dates and --max-pages must not be negative", domain.ErrInvalidInput)
	}
	opts := driving.SyncOptions{
		MaxDates: maxDates,
		Snapshot: snapshotMode,
		MaxPages: maxPages,
	}
	if startDate != "" {
		d, err := time.Parse(domain.DateLayout, startDate)
		if err != nil {
			return driving.SyncOptions{}, fmt.Errorf("%w: --start-date %q is not YYYY-MM-DD", domain.ErrInvalidInput, startDate)
		}
		opts.StartDate = d
	}
	return opts, nil
}

func enrichOptionsFromFlags() driving.EnrichOptions {
	return driving.EnrichOptions{MaxIterations: maxIterations}
}

// executeRun runs the pipeline once. A run skipped because another holds
// the lease is reported and is not an error.
func executeRun(cmd *cobra.Command, opts driving.RunOptions) error {
	if err := requirePipeline(); err != nil {
		return err
	}

	report, err := pipelineService.Run(commandContext(cmd), opts)
	if errors.Is(err, domain.ErrLeaseHeld) {
		cmd.Printf("Another run is in progress: %v\n", err)
		return nil
	}
	if report != nil {
		printRunReport(cmd, report)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

func printRunReport(cmd *cobra.Command, r *driving.RunReport) {
	cmd.Printf("Run %s: %s\n", r.RunID, r.Status)

	if s := r.Sync; s != nil {
		cmd.Printf("  Sync: %d created, %d updated, %d deleted, %d unchanged",
			s.Stats.Created, s.Stats.Updated, s.Stats.Deleted+s.Swept, s.Stats.Unchanged)
		if s.Stats.Skipped > 0 {
			cmd.Printf(", %d skipped", s.Stats.Skipped)
		}
		cmd.Println()
		cmd.Printf("  Pages: %d committed, %d failed over %d dates\n", s.Pages, s.FailedPages, s.Dates)
		cmd.Printf("  Cursor: %s\n", s.Cursor)
	}

	if e := r.Enrich; e != nil {
		n := e.Normalization
		cmd.Printf("  Normalised: %d complete, %d pending, %d skipped, %d for manual review\n",
			n.Completed, n.Pending, n.Skipped, n.ManualReview)
		cmd.Printf("  Enrichment: %s after %d iterations, %d translations added",
			e.Outcome, e.Iterations, e.Added)
		if e.ProviderErrors > 0 {
			cmd.Printf(", %d provider errors", e.ProviderErrors)
		}
		cmd.Println()
		if e.RemainingGaps > 0 {
			cmd.Printf("  Untranslated tokens remaining: %d (see 'listsync dictionary gaps')\n", e.RemainingGaps)
		}
	}
}
