package doctor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/flowscope/internal/dbutil"
	"github.com/pthm/flowscope/pkg/flow"
	"github.com/pthm/flowscope/pkg/source"
	"github.com/pthm/flowscope/pkg/store"
)

const (
	parentDoc = `{
		"assignments": [{"name": "A", "connector": {"targetReference": "Ghost"}}],
		"subflows": [
			{"name": "Call_Child", "flowName": "Child"},
			{"name": "Call_Missing", "flowName": "Missing"}
		]
	}`
	childDoc = `{"recordCreates": [{"name": "Create", "object": "Task"}]}`
)

func mustCheck(t *testing.T, r *Report, name string) CheckResult {
	t.Helper()
	c, ok := r.Check(name)
	require.True(t, ok, "missing check %q", name)
	return c
}

func TestDoctorWorkspace(t *testing.T) {
	mem := source.NewMemory()
	mem.Put("Parent", source.FormatJSON, []byte(parentDoc))
	mem.Put("Child", source.FormatJSON, []byte(childDoc))
	mem.Put("Broken", source.FormatJSON, []byte(`[1, 2]`))

	report, err := New(mem, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPass, mustCheck(t, report, "listable").Status)

	parse := mustCheck(t, report, "parse")
	assert.Equal(t, StatusFail, parse.Status)
	assert.Contains(t, parse.Details, "Broken")

	conn := mustCheck(t, report, "connectors")
	assert.Equal(t, StatusWarn, conn.Status)
	assert.Contains(t, conn.Details, "Ghost")

	subs := mustCheck(t, report, "subflows")
	assert.Equal(t, StatusWarn, subs.Status)
	assert.Contains(t, subs.Details, "Call_Missing calls Missing")
	assert.NotContains(t, subs.Details, "Call_Child")

	assert.Equal(t, StatusWarn, mustCheck(t, report, "configured").Status)
	assert.True(t, report.HasErrors())
	assert.Equal(t, 1, report.Errors)
}

func TestDoctorEmptySource(t *testing.T) {
	report, err := New(source.NewMemory(), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusWarn, mustCheck(t, report, "listable").Status)
	_, ok := report.Check("parse")
	assert.False(t, ok)
	assert.False(t, report.HasErrors())
}

type fetchOnly struct{ source.Source }

func TestDoctorUnlistableSource(t *testing.T) {
	report, err := New(fetchOnly{source.NewMemory()}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusWarn, mustCheck(t, report, "listable").Status)
}

func TestDoctorStore(t *testing.T) {
	ctx := context.Background()
	db, err := dbutil.Open(ctx, dbutil.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	runs := store.New(db, dbutil.SQLite)

	mem := source.NewMemory()
	mem.Put("Child", source.FormatJSON, []byte(childDoc))
	mem.Put("Other", source.FormatJSON, []byte(childDoc))

	d := New(mem, runs)
	report, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusWarn, mustCheck(t, report, "table_exists").Status)
	_, ok := report.Check("coverage")
	assert.False(t, ok)

	a := &flow.WorkflowAnalysis{Name: "Child", BulkificationScore: 100}
	_, _, err = runs.Save(ctx, a, "abc", store.SaveOptions{})
	require.NoError(t, err)

	report, err = d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusPass, mustCheck(t, report, "table_exists").Status)
	coverage := mustCheck(t, report, "coverage")
	assert.Equal(t, StatusWarn, coverage.Status)
	assert.Equal(t, "Other", coverage.Details)
	assert.Equal(t, StatusPass, mustCheck(t, report, "freshness").Status)

	d.now = func() time.Time { return time.Now().Add(30 * 24 * time.Hour) }
	report, err = d.Run(ctx)
	require.NoError(t, err)
	fresh := mustCheck(t, report, "freshness")
	assert.Equal(t, StatusWarn, fresh.Status)
	assert.Contains(t, fresh.Details, "Child: analyzed")
}

func TestReportPrint(t *testing.T) {
	r := &Report{}
	r.AddCheck(CheckResult{Category: "Flow Source", Name: "listable", Status: StatusPass, Message: "Flow source lists 2 definitions"})
	r.AddCheck(CheckResult{Category: "Flow Source", Name: "parse", Status: StatusFail, Message: "1 of 2 definitions cannot be parsed", Details: "Broken: bad", FixHint: "fix it"})
	r.AddCheck(CheckResult{Category: "Run Store", Name: "configured", Status: StatusWarn, Message: "No run store configured"})

	var quiet, verbose bytes.Buffer
	r.Print(&quiet, false)
	r.Print(&verbose, true)

	assert.Contains(t, quiet.String(), "Flow Source\n  ✓ Flow source lists 2 definitions")
	assert.Contains(t, quiet.String(), "Fix: fix it")
	assert.NotContains(t, quiet.String(), "Broken: bad")
	assert.Contains(t, verbose.String(), "      Broken: bad")
	assert.Contains(t, quiet.String(), "Summary: 1 passed, 1 warnings, 1 errors")
	assert.Equal(t, "warn", StatusWarn.String())
}
