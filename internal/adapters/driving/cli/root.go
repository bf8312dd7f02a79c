package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
	"github.com/custodia-labs/listsync/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Options carries the flags that shape how services are built.
type Options struct {
	// ConfigDir overrides ~/.listsync.
	ConfigDir string

	// Provider overrides the configured translation provider.
	Provider string

	// BatchSize overrides the normalisation batch size. Zero keeps the setting.
	BatchSize int

	// ConfigOnly asks for Settings and Config alone, without opening the store.
	ConfigOnly bool
}

// Services is the set of core services the commands drive.
type Services struct {
	Settings   driving.SettingsService
	Config     driven.ConfigStore
	Pipeline   driving.Pipeline
	Dictionary driving.DictionaryService
	Status     driving.StatusService

	// Scheduler builds the serve-mode scheduler. interval overrides the
	// configured pipeline interval when positive.
	Scheduler func(opts driving.RunOptions, interval time.Duration) driving.Scheduler

	// Serve runs the status HTTP server until ctx ends.
	Serve func(ctx context.Context, addr string) error

	// Close releases the store.
	Close func() error
}

// Bootstrap builds services for one command invocation.
type Bootstrap func(ctx context.Context, opts Options) (*Services, error)

// Service instances injected by bootstrap (or directly by tests).
var (
	settingsService   driving.SettingsService
	configStore       driven.ConfigStore
	pipelineService   driving.Pipeline
	dictionaryService driving.DictionaryService
	statusService     driving.StatusService
	newScheduler      func(driving.RunOptions, time.Duration) driving.Scheduler
	serveHTTP         func(context.Context, string) error
	closeServices     func() error
)

var (
	bootstrap Bootstrap

	configDir    string
	verbose      bool
	logFormat    string
	providerFlag string
	batchSize    int
)

// Command annotations read by setup.
const (
	// skipBootstrap marks commands that need no services.
	skipBootstrap = "skip-bootstrap"

	// configOnly marks commands that only read or write configuration.
	configOnly = "config-only"
)

var rootCmd = &cobra.Command{
	Use:   "listsync",
	Short: "Catalog change-feed loader and listing normaliser",
	Long: `listsync keeps a local copy of an upstream listing catalog in sync,
normalises raw listings into a canonical schema and translates their
vocabulary through a persisted dictionary.

Runs are single-flight: a second invocation while one is active exits
without side effects.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.listsync)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&logFormat, "log-format", string(logger.FormatConsole), "log format: console or json")
}

// SetBootstrap sets the function that builds services before a command runs.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command and releases services afterwards.
func Execute(ctx context.Context) error {
	defer func() {
		if closeServices == nil {
			return
		}
		if err := closeServices(); err != nil {
			logger.Warn("Closing store: %v", err)
		}
		closeServices = nil
	}()
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	logger.SetFormat(logger.Format(logFormat))

	if cmd.Annotations[skipBootstrap] == "true" || bootstrap == nil {
		return nil
	}

	svc, err := bootstrap(commandContext(cmd), Options{
		ConfigDir:  configDir,
		Provider:   providerFlag,
		BatchSize:  batchSize,
		ConfigOnly: cmd.Annotations[configOnly] == "true",
	})
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	setServices(svc)
	return nil
}

func setServices(svc *Services) {
	settingsService = svc.Settings
	configStore = svc.Config
	pipelineService = svc.Pipeline
	dictionaryService = svc.Dictionary
	statusService = svc.Status
	newScheduler = svc.Scheduler
	serveHTTP = svc.Serve
	closeServices = svc.Close
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func requirePipeline() error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	return nil
}
