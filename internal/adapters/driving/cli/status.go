package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state, store counts and recent runs",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if statusService == nil {
		return errors.New("status service not configured")
	}

	report, err := statusService.Status(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	printStatus(cmd, report)
	return nil
}

func printStatus(cmd *cobra.Command, r *driving.StatusReport) {
	cmd.Println("[Sync]")
	if r.SyncState == nil {
		cmd.Println("  Cursor: none (never synced)")
	} else {
		cmd.Printf("  Cursor: %s\n", r.SyncState.Cursor)
		cmd.Printf("  Updated: %s\n", formatTime(r.SyncState.UpdatedAt))
	}
	if r.Lease == nil {
		cmd.Println("  Lease: free")
	} else {
		cmd.Printf("  Lease: held by %s until %s\n", r.Lease.Owner, formatTime(r.Lease.ExpiresAt))
	}
	cmd.Println()

	cmd.Println("[Raw records]")
	cmd.Printf("  Total: %d (%d deleted)\n", r.Raw.Total, r.Raw.Deleted)
	cmd.Printf("  Awaiting normalisation: %d\n", r.Raw.Unprocessed)
	if r.Raw.ManualReview > 0 {
		cmd.Printf("  Needs manual review: %d\n", r.Raw.ManualReview)
	}
	cmd.Println()

	cmd.Println("[Processed records]")
	cmd.Printf("  Active: %d of %d\n", r.Processed.Active, r.Processed.Total)
	cmd.Printf("  With untranslated tokens: %d\n", r.Processed.Untranslated)
	cmd.Println()

	cmd.Println("[Dictionary]")
	cmd.Printf("  Version %d, %d entries\n", r.DictionaryVersion, r.DictionarySize)
	cmd.Println()

	cmd.Println("[Recent runs]")
	if len(r.RecentRuns) == 0 {
		cmd.Println("  No runs recorded.")
		return
	}
	for _, e := range r.RecentRuns {
		cmd.Printf("  %s  %-9s %-8s %s  %s\n",
			formatTime(e.StartedAt), e.Stage, e.Status, e.Duration().Round(time.Millisecond), formatCounts(e.Counts))
		if e.ErrorSummary != "" {
			cmd.Printf("      error: %s\n", e.ErrorSummary)
		}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatCounts(c domain.Counts) string {
	return fmt.Sprintf("+%d ~%d -%d skip %d err %d", c.Created, c.Updated, c.Deleted, c.Skipped, c.Errored)
}
