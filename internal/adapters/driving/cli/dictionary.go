package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

var (
	importOverwrite bool
	exportOutput    string
	gapsMinCount    int
	gapsLimit       int
)

// dictionaryFile is the YAML layout used by import and export.
type dictionaryFile struct {
	Entries []domain.TranslationEntry `yaml:"entries"`
}

var dictionaryCmd = &cobra.Command{
	Use:   "dictionary",
	Short: "Manage the translation dictionary",
}

var dictionaryImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import translation entries from YAML",
	Long: `Imports entries from a YAML file with an "entries" list of
{source, target, lang, provider} items. Existing entries are kept unless
--overwrite is set; overwritten tokens queue their records for
re-normalisation.`,
	Args: cobra.ExactArgs(1),
	RunE: runDictionaryImport,
}

var dictionaryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the dictionary as YAML",
	Args:  cobra.NoArgs,
	RunE:  runDictionaryExport,
}

var dictionaryGapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "List untranslated tokens by occurrence",
	Args:  cobra.NoArgs,
	RunE:  runDictionaryGaps,
}

func init() {
	dictionaryImportCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "replace existing translations")
	dictionaryExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
	dictionaryGapsCmd.Flags().IntVar(&gapsMinCount, "min-count", 1, "only tokens seen at least this many times")
	dictionaryGapsCmd.Flags().IntVarP(&gapsLimit, "limit", "n", 0, "maximum tokens to list (0 for all)")

	dictionaryCmd.AddCommand(dictionaryImportCmd)
	dictionaryCmd.AddCommand(dictionaryExportCmd)
	dictionaryCmd.AddCommand(dictionaryGapsCmd)
	rootCmd.AddCommand(dictionaryCmd)
}

func runDictionaryImport(cmd *cobra.Command, args []string) error {
	if dictionaryService == nil {
		return errors.New("dictionary service not configured")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	var file dictionaryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", domain.ErrInvalidInput, args[0], err)
	}
	if len(file.Entries) == 0 {
		cmd.Println("No entries to import.")
		return nil
	}
	report, err := dictionaryService.Import(commandContext(cmd), file.Entries, importOverwrite)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	m := report.Merge
	cmd.Printf("Imported %d entries: %d added, %d overwritten, %d conflicts\n",
		len(file.Entries), len(m.Added), len(m.Overwritten), len(m.Conflicts))
	if m.Changed() {
		cmd.Printf("Dictionary is now at version %d\n", m.Version)
	}
	if report.Requeued > 0 {
		cmd.Printf("%d records queued for re-normalisation\n", report.Requeued)
	}
	if len(m.Conflicts) > 0 && !importOverwrite {
		cmd.Println("Use --overwrite to replace conflicting translations.")
	}
	return nil
}

func runDictionaryExport(cmd *cobra.Command, _ []string) error {
	if dictionaryService == nil {
		return errors.New("dictionary service not configured")
	}

	entries, err := dictionaryService.Export(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	data, err := yaml.Marshal(dictionaryFile{Entries: entries})
	if err != nil {
		return fmt.Errorf("encoding dictionary: %w", err)
	}

	if exportOutput == "" {
		return writeAll(cmd.OutOrStdout(), data)
	}
	if err := os.WriteFile(exportOutput, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", exportOutput, err)
	}
	cmd.Printf("Exported %d entries to %s\n", len(entries), exportOutput)
	return nil
}

func runDictionaryGaps(cmd *cobra.Command, _ []string) error {
	if dictionaryService == nil {
		return errors.New("dictionary service not configured")
	}

	gaps, err := dictionaryService.Gaps(commandContext(cmd), gapsMinCount)
	if err != nil {
		return fmt.Errorf("listing gaps failed: %w", err)
	}
	if len(gaps) == 0 {
		cmd.Println("No untranslated tokens.")
		return nil
	}

	shown := gaps
	if gapsLimit > 0 && len(shown) > gapsLimit {
		shown = shown[:gapsLimit]
	}
	cmd.Printf("%d untranslated tokens:\n", len(gaps))
	for _, g := range shown {
		cmd.Printf("  %6d  %s\n", g.Count, g.Token)
	}
	if len(shown) < len(gaps) {
		cmd.Printf("  ... and %d more\n", len(gaps)-len(shown))
	}
	return nil
}

func writeAll(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}
