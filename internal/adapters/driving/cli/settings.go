package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change configuration",
	Long: `Shows the resolved configuration (defaults, then config.toml, then
environment) or writes single keys to config.toml.`,
	Annotations: map[string]string{configOnly: "true"},
	RunE:        runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show current settings",
	Annotations: map[string]string{configOnly: "true"},
	RunE:        runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a configuration key",
	Long: `Writes one dotted key to config.toml, for example:

  listsync settings set translation.provider deepl
  listsync settings set retry.max_attempts 5
  listsync settings set scheduler.interval 6h

Integers, floats and booleans are stored typed; everything else as a string.`,
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{configOnly: "true"},
	RunE:        runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	if configStore != nil {
		cmd.Printf("Config file: %s\n", configStore.Path())
	}
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Driver: %s\n", settings.Storage.Driver)
	if settings.Storage.Driver == "postgres" {
		cmd.Printf("  DSN: %s\n", maskDSN(settings.Storage.DSN))
	} else {
		path := settings.Storage.Path
		if path == "" {
			path = "(default)"
		}
		cmd.Printf("  Path: %s\n", path)
	}
	cmd.Println()

	c := settings.Catalog
	cmd.Println("[Catalog]")
	cmd.Printf("  Base URL: %s\n", c.BaseURL)
	cmd.Printf("  Access name: %s\n", valueOrUnset(c.AccessName))
	cmd.Printf("  API Key: %s\n", keyOrUnset(c.APIKey))
	cmd.Printf("  Intervals: changes %s, offers %s\n", c.ChangesInterval, c.OffersInterval)
	cmd.Println()

	tr := settings.Translation
	cmd.Println("[Translation]")
	cmd.Printf("  Provider: %s\n", tr.Provider.Description())
	cmd.Printf("  Languages: %s -> %s\n", tr.SourceLanguage, tr.TargetLanguage)
	if tr.Provider == domain.ProviderOpenAI {
		cmd.Printf("  Model: %s\n", tr.OpenAIModel)
	}
	if tr.Provider.RequiresAPIKey() {
		cmd.Printf("  API Key: %s\n", keyOrUnset(tr.APIKey()))
	}
	status := "configured"
	if !tr.IsConfigured() {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Println()

	r := settings.Retry
	cmd.Println("[Retry]")
	cmd.Printf("  Attempts: %d, backoff %s (x%.1f), total timeout %s\n",
		r.MaxAttempts, r.Backoff, r.Multiplier, r.TotalTimeout)
	if settings.TestMode {
		cmd.Println("  Test mode: on")
	}
	cmd.Println()

	cmd.Println("[Pipeline]")
	cmd.Printf("  Normalisation batch: %d (manual review after %d skips)\n",
		settings.Normalization.BatchSize, settings.Normalization.MaxSkips)
	cmd.Printf("  Enrichment: %d iterations max, %d tokens per call\n",
		settings.Enrichment.MaxIterations, settings.Enrichment.BatchSize)
	cmd.Printf("  Lease TTL: %s\n", settings.Lease.TTL)
	cmd.Printf("  Server: %s\n", settings.Server.Addr)

	sched := settingsService.GetScheduleConfig()
	if sched.Enabled {
		cmd.Printf("  Scheduled run: every %s (retry after %s on failure)\n", sched.Interval, sched.FailureDelay)
	} else {
		cmd.Println("  Scheduled run: disabled")
	}

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	key := strings.TrimSpace(args[0])
	if key == "" || strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") {
		return fmt.Errorf("%w: invalid key %q", domain.ErrInvalidInput, args[0])
	}

	if err := configStore.Set(key, parseValue(args[1])); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}

	// Warn when settings no longer resolve, e.g. an unknown provider
	if settingsService != nil {
		if _, err := settingsService.Get(); err != nil {
			cmd.Printf("Warning: %v\n", err)
		}
	}
	cmd.Printf("Set %s in %s\n", key, configStore.Path())
	return nil
}

// parseValue keeps TOML types for integers, floats and booleans.
func parseValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && strings.Contains(raw, ".") {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return b
	}
	return raw
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password in a connection string.
func maskDSN(dsn string) string {
	if dsn == "" {
		return "(not set)"
	}
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPassword := strings.Cut(userinfo, ":")
	if !hasPassword {
		return dsn
	}
	return scheme + "://" + user + ":****@" + host
}

func keyOrUnset(key string) string {
	if key == "" {
		return "(not set)"
	}
	return maskAPIKey(key)
}

func valueOrUnset(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}
