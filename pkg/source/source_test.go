package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/flowscope/internal/dbutil"
	"github.com/pthm/flowscope/pkg/flow"
)

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"a/Account_Update.flow-meta.xml": FormatXML,
		"Account.flow":                   FormatXML,
		"x.JSON":                         FormatJSON,
		"x.yaml":                         FormatYAML,
		"x.yml":                          FormatYAML,
		"x.txt":                          "",
	}
	for path, want := range tests {
		assert.Equal(t, want, FormatFromPath(path), path)
	}
}

func TestNameFromPath(t *testing.T) {
	assert.Equal(t, "Account_Update", NameFromPath("flows/Account_Update.flow-meta.xml"))
	assert.Equal(t, "Child", NameFromPath("Child.json"))
	assert.Equal(t, "README", NameFromPath("README"))
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat("YML")
	assert.True(t, ok)
	assert.Equal(t, FormatYAML, f)

	_, ok = ParseFormat("toml")
	assert.False(t, ok)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDirFetch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Parent.flow-meta.xml", "<Flow/>")
	writeFile(t, dir, "Child.json", "{}")
	writeFile(t, dir, "Child.yaml", "a: 1")
	writeFile(t, dir, "notes.txt", "ignored")

	src := NewDir(dir)
	ctx := context.Background()

	raw, err := src.Fetch(ctx, "Parent")
	require.NoError(t, err)
	assert.Equal(t, "Parent", raw.Name)
	assert.Equal(t, FormatXML, raw.Format)
	assert.Equal(t, "<Flow/>", string(raw.Content))
	assert.Equal(t, 1, raw.Version.Version)
	assert.False(t, raw.Version.LastModified.IsZero())

	// .json is probed before .yaml
	raw, err = src.Fetch(ctx, "Child")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, raw.Format)

	_, err = src.Fetch(ctx, "Missing")
	assert.True(t, flow.IsNotFoundErr(err))

	names, err := src.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Child", "Parent"}, names)
}

func TestDirFetchExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Standalone.yml", "name: x")

	raw, err := NewDir(t.TempDir()).Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Standalone", raw.Name)
	assert.Equal(t, FormatYAML, raw.Format)
}

func TestMemoryFallback(t *testing.T) {
	base := NewMemory()
	base.Put("Child", FormatJSON, []byte("{}"))

	m := NewMemory()
	m.Fallback = base
	m.Put("Posted", FormatXML, []byte("<Flow/>"))

	ctx := context.Background()
	raw, err := m.Fetch(ctx, "Posted")
	require.NoError(t, err)
	assert.Equal(t, FormatXML, raw.Format)

	raw, err = m.Fetch(ctx, "Child")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, raw.Format)
	assert.Equal(t, 1, base.Calls("Child"))

	_, err = base.Fetch(ctx, "Nope")
	assert.True(t, flow.IsNotFoundErr(err))
}

func TestSQLSourceSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := dbutil.Open(ctx, dbutil.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	src := NewSQL(db, dbutil.SQLite)
	require.NoError(t, src.EnsureSchema(ctx))
	require.NoError(t, src.EnsureSchema(ctx), "idempotent")

	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, src.Put(ctx, RawMetadata{
		Name:    "Account_Sync",
		Format:  FormatXML,
		Content: []byte("<Flow/>"),
		Version: flow.Version{Status: "Active", LastModified: modified},
	}))

	raw, err := src.Fetch(ctx, "Account_Sync")
	require.NoError(t, err)
	assert.Equal(t, FormatXML, raw.Format)
	assert.Equal(t, "<Flow/>", string(raw.Content))
	assert.Equal(t, 1, raw.Version.Version)
	assert.Equal(t, "Active", raw.Version.Status)
	assert.True(t, modified.Equal(raw.Version.LastModified))

	require.NoError(t, src.Put(ctx, RawMetadata{Name: "Account_Sync", Format: FormatJSON, Content: []byte("{}")}))
	raw, err = src.Fetch(ctx, "Account_Sync")
	require.NoError(t, err)
	assert.Equal(t, 2, raw.Version.Version)
	assert.Equal(t, FormatJSON, raw.Format)

	_, err = src.Fetch(ctx, "Missing")
	assert.True(t, flow.IsNotFoundErr(err))

	names, err := src.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Account_Sync"}, names)
}
