package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
)

// mockDictionary implements driving.DictionaryService for testing.
type mockDictionary struct {
	imported  []domain.TranslationEntry
	overwrite bool
	report    *driving.ImportReport
	entries   []domain.TranslationEntry
	gaps      []driving.TokenGap
	minCount  int
	err       error
}

func (m *mockDictionary) Snapshot() *domain.DictionarySnapshot {
	return domain.NewDictionarySnapshot(1, m.entries)
}

func (m *mockDictionary) Import(_ context.Context, entries []domain.TranslationEntry, overwrite bool) (*driving.ImportReport, error) {
	m.imported = entries
	m.overwrite = overwrite
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

func (m *mockDictionary) Export(context.Context) ([]domain.TranslationEntry, error) {
	return m.entries, m.err
}

func (m *mockDictionary) Gaps(_ context.Context, minCount int) ([]driving.TokenGap, error) {
	m.minCount = minCount
	return m.gaps, m.err
}

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dict.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDictionaryImport(t *testing.T) {
	m := &mockDictionary{report: &driving.ImportReport{
		Merge: domain.MergeResult{
			Version: 4,
			Added:   []domain.TranslationEntry{{SourceToken: "红色", CanonicalToken: "красный"}},
		},
	}}
	dictionaryService = m

	path := writeYAML(t, `
entries:
  - source: 红色
    target: красный
  - source: 自动
    target: автомат
    provider: deepl
`)

	out, err := execute(t, "dictionary", "import", path)
	require.NoError(t, err)

	require.Len(t, m.imported, 2)
	assert.Equal(t, "红色", m.imported[0].SourceToken)
	assert.Equal(t, "красный", m.imported[0].CanonicalToken)
	assert.Equal(t, "deepl", m.imported[1].Provider)
	assert.False(t, m.overwrite)
	assert.Contains(t, out, "Imported 2 entries: 1 added, 0 overwritten, 0 conflicts")
	assert.Contains(t, out, "Dictionary is now at version 4")
}

func TestDictionaryImport_OverwriteRequeues(t *testing.T) {
	m := &mockDictionary{report: &driving.ImportReport{
		Merge: domain.MergeResult{
			Version:     5,
			Overwritten: []domain.TranslationEntry{{SourceToken: "红色", CanonicalToken: "алый"}},
		},
		Requeued: 17,
	}}
	dictionaryService = m

	path := writeYAML(t, "entries:\n  - source: 红色\n    target: алый\n")

	out, err := execute(t, "dictionary", "import", "--overwrite", path)
	require.NoError(t, err)
	assert.True(t, m.overwrite)
	assert.Contains(t, out, "17 records queued for re-normalisation")
}

func TestDictionaryImport_ConflictsHint(t *testing.T) {
	dictionaryService = &mockDictionary{report: &driving.ImportReport{
		Merge: domain.MergeResult{Conflicts: []domain.DictionaryConflict{{}}},
	}}

	out, err := execute(t, "dictionary", "import", writeYAML(t, "entries:\n  - source: a\n    target: b\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "Use --overwrite")
	assert.NotContains(t, out, "now at version")
}

func TestDictionaryImport_EmptyFile(t *testing.T) {
	m := &mockDictionary{}
	dictionaryService = m

	out, err := execute(t, "dictionary", "import", writeYAML(t, "entries: []\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "No entries to import.")
	assert.Nil(t, m.imported)
}

func TestDictionaryImport_InvalidYAML(t *testing.T) {
	dictionaryService = &mockDictionary{}

	_, err := execute(t, "dictionary", "import", writeYAML(t, "entries: [unclosed\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDictionaryImport_MissingFile(t *testing.T) {
	dictionaryService = &mockDictionary{}

	_, err := execute(t, "dictionary", "import", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDictionaryImport_ServiceError(t *testing.T) {
	dictionaryService = &mockDictionary{err: errors.New("disk full")}

	_, err := execute(t, "dictionary", "import", writeYAML(t, "entries:\n  - source: a\n    target: b\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import failed: disk full")
}

func TestDictionaryExport_Stdout(t *testing.T) {
	dictionaryService = &mockDictionary{entries: []domain.TranslationEntry{
		{SourceToken: "红色", SourceLanguage: "zh", CanonicalToken: "красный", Provider: "manual"},
	}}

	out, err := execute(t, "dictionary", "export")
	require.NoError(t, err)

	var file dictionaryFile
	require.NoError(t, yaml.Unmarshal([]byte(out), &file))
	require.Len(t, file.Entries, 1)
	assert.Equal(t, "красный", file.Entries[0].CanonicalToken)
	assert.Equal(t, "zh", file.Entries[0].SourceLanguage)
}

func TestDictionaryExport_File(t *testing.T) {
	dictionaryService = &mockDictionary{entries: []domain.TranslationEntry{
		{SourceToken: "自动", CanonicalToken: "автомат"},
	}}
	path := filepath.Join(t.TempDir(), "out.yaml")

	out, err := execute(t, "dictionary", "export", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 entries to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "target: автомат")
}

func TestDictionaryGaps(t *testing.T) {
	m := &mockDictionary{gaps: []driving.TokenGap{
		{Token: "天窗", Count: 40},
		{Token: "真皮", Count: 12},
		{Token: "倒车影像", Count: 3},
	}}
	dictionaryService = m

	out, err := execute(t, "dictionary", "gaps", "--min-count", "2", "--limit", "2")
	require.NoError(t, err)

	assert.Equal(t, 2, m.minCount)
	assert.Contains(t, out, "3 untranslated tokens:")
	assert.Contains(t, out, "天窗")
	assert.Contains(t, out, "真皮")
	assert.NotContains(t, out, "倒车影像")
	assert.Contains(t, out, "... and 1 more")
}

func TestDictionaryGaps_None(t *testing.T) {
	dictionaryService = &mockDictionary{}

	out, err := execute(t, "dictionary", "gaps")
	require.NoError(t, err)
	assert.Contains(t, out, "No untranslated tokens.")
}

func TestDictionaryCmds_NotConfigured(t *testing.T) {
	for _, args := range [][]string{
		{"dictionary", "import", "x.yaml"},
		{"dictionary", "export"},
		{"dictionary", "gaps"},
	} {
		_, err := execute(t, args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "dictionary service not configured")
	}
}
