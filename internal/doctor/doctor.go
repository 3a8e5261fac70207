// Package doctor provides health checks for a flowscope workspace.
//
// The doctor command validates that workflow definitions can be fetched and
// parsed, that every connector and sub-workflow reference resolves, and that
// the run store is reachable and holds fresh analyses.
//
// Example usage:
//
//	d := doctor.New(src, runs)
//	report, err := d.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pthm/flowscope/internal/flowgraph"
	"github.com/pthm/flowscope/pkg/flow"
	"github.com/pthm/flowscope/pkg/parser"
	"github.com/pthm/flowscope/pkg/source"
	"github.com/pthm/flowscope/pkg/store"
)

// DefaultStaleAfter is the age after which a stored analysis is reported as
// stale.
const DefaultStaleAfter = 7 * 24 * time.Hour

// Status represents the result of a health check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical issue that will cause failures.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator symbol for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// CheckResult represents the outcome of a single health check.
type CheckResult struct {
	// Category groups related checks (e.g., "Flow Source", "Run Store").
	Category string

	// Name is a short identifier for the check.
	Name string

	// Status is the check outcome.
	Status Status

	// Message is a human-readable description of the result.
	Message string

	// Details provides additional information for verbose output.
	Details string

	// FixHint suggests how to resolve issues.
	FixHint string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult

	// Summary counts.
	Passed   int
	Warnings int
	Errors   int
}

// AddCheck adds a check result and updates summary counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Check returns the first result with the given name.
func (r *Report) Check(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Print writes the report to the given writer.
func (r *Report) Print(w io.Writer, verbose bool) {
	// Group checks by category
	categories := make(map[string][]CheckResult)
	var categoryOrder []string
	for _, check := range r.Checks {
		if _, exists := categories[check.Category]; !exists {
			categoryOrder = append(categoryOrder, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	for _, cat := range categoryOrder {
		_, _ = fmt.Fprintf(w, "\n%s\n", cat)
		for _, check := range categories[cat] {
			_, _ = fmt.Fprintf(w, "  %s %s\n", check.Status.Symbol(), check.Message)
			if verbose && check.Details != "" {
				for _, line := range strings.Split(check.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if check.Status != StatusPass && check.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      Fix: %s\n", check.FixHint)
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// Doctor performs health checks on a flow source and run store.
type Doctor struct {
	src  source.Source
	runs *store.Store

	// StaleAfter is the maximum age of a stored analysis before it is
	// reported as stale.
	StaleAfter time.Duration

	now func() time.Time

	// Cached data from checks (populated during Run)
	names    []string
	parsed   map[string]*flow.Metadata
	versions map[string]flow.Version
}

// New creates a new Doctor. runs may be nil when no store is configured.
func New(src source.Source, runs *store.Store) *Doctor {
	return &Doctor{
		src:        src,
		runs:       runs,
		StaleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
}

// Run executes all health checks and returns a report.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	d.parsed = make(map[string]*flow.Metadata)
	d.versions = make(map[string]flow.Version)

	if err := d.checkSource(ctx, report); err != nil {
		return nil, fmt.Errorf("checking flow source: %w", err)
	}
	d.checkReferences(report)
	if err := d.checkStore(ctx, report); err != nil {
		return nil, fmt.Errorf("checking run store: %w", err)
	}
	return report, nil
}

// checkSource lists the source and parses every definition.
func (d *Doctor) checkSource(ctx context.Context, report *Report) error {
	const category = "Flow Source"

	lister, ok := d.src.(source.Lister)
	if !ok {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "listable",
			Status:   StatusWarn,
			Message:  "Flow source cannot enumerate definitions",
			FixHint:  "Use the dir or sql source to enable workspace checks",
		})
		return nil
	}

	names, err := lister.List(ctx)
	if err != nil {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "listable",
			Status:   StatusFail,
			Message:  "Flow source is not readable",
			Details:  err.Error(),
			FixHint:  "Check flows_dir or the store connection settings",
		})
		return nil
	}
	if len(names) == 0 {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "listable",
			Status:   StatusWarn,
			Message:  "Flow source contains no definitions",
			FixHint:  "Add .flow-meta.xml, .json or .yaml files to the flows directory",
		})
		return nil
	}
	d.names = names
	report.AddCheck(CheckResult{
		Category: category,
		Name:     "listable",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Flow source lists %d definitions", len(names)),
	})

	var failures []string
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := d.src.Fetch(ctx, name)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		md, err := parser.Parse(raw)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		d.parsed[name] = md
		d.versions[name] = raw.Version
	}

	if len(failures) > 0 {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "parse",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%d of %d definitions cannot be parsed", len(failures), len(names)),
			Details:  strings.Join(failures, "\n"),
			FixHint:  "Run 'flowscope validate <flow>' for the full error",
		})
		return nil
	}
	report.AddCheck(CheckResult{
		Category: category,
		Name:     "parse",
		Status:   StatusPass,
		Message:  "All definitions parse",
	})
	return nil
}

// checkReferences looks for connectors and sub-workflow calls that point at
// nothing.
func (d *Doctor) checkReferences(report *Report) {
	const category = "References"
	if len(d.parsed) == 0 {
		return
	}

	var dangling, unresolved []string
	for _, name := range d.names {
		md, ok := d.parsed[name]
		if !ok {
			continue
		}
		g := flowgraph.Build(md)
		for _, dr := range g.Dangling {
			dangling = append(dangling, fmt.Sprintf("%s: %s", name, dr))
		}
		for _, call := range flowgraph.SubflowCalls(g, nil) {
			if !d.known(call.Flow) {
				unresolved = append(unresolved, fmt.Sprintf("%s: %s calls %s", name, call.Element, call.Flow))
			}
		}
	}

	if len(dangling) > 0 {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "connectors",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d connector(s) target missing elements", len(dangling)),
			Details:  strings.Join(dangling, "\n"),
			FixHint:  "Remove or retarget the connectors; analysis ignores them",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "connectors",
			Status:   StatusPass,
			Message:  "All connectors resolve",
		})
	}

	if len(unresolved) > 0 {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "subflows",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d sub-workflow call(s) cannot be resolved", len(unresolved)),
			Details:  strings.Join(unresolved, "\n"),
			FixHint:  "Add the called flows to the source; they are excluded from cumulative metrics",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "subflows",
			Status:   StatusPass,
			Message:  "All sub-workflow calls resolve",
		})
	}
}

func (d *Doctor) known(name string) bool {
	i := sort.SearchStrings(d.names, name)
	return i < len(d.names) && d.names[i] == name
}

// checkStore validates the run store and the freshness of stored analyses.
func (d *Doctor) checkStore(ctx context.Context, report *Report) error {
	const category = "Run Store"

	if d.runs == nil {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "configured",
			Status:   StatusWarn,
			Message:  "No run store configured",
			FixHint:  "Set store.url (or store.host) to record analyses",
		})
		return nil
	}

	status, err := d.runs.GetStatus(ctx)
	if err != nil {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "reachable",
			Status:   StatusFail,
			Message:  "Run store is not reachable",
			Details:  err.Error(),
			FixHint:  "Check the store connection settings",
		})
		return nil
	}
	if !status.TableExists {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "table_exists",
			Status:   StatusWarn,
			Message:  store.RunsTable + " table does not exist",
			FixHint:  "Run 'flowscope analyze <flow> --store' to create it",
		})
		return nil
	}
	report.AddCheck(CheckResult{
		Category: category,
		Name:     "table_exists",
		Status:   StatusPass,
		Message:  fmt.Sprintf("%s table exists (%d runs, %d flows)", store.RunsTable, status.Runs, status.Flows),
	})

	if len(d.names) == 0 {
		return nil
	}

	now := d.now()
	var missing, stale []string
	for _, name := range d.names {
		last, err := d.runs.Last(ctx, name)
		if err != nil {
			return fmt.Errorf("getting last run for %s: %w", name, err)
		}
		switch {
		case last == nil:
			missing = append(missing, name)
		case d.StaleAfter > 0 && now.Sub(last.CreatedAt) > d.StaleAfter:
			stale = append(stale, fmt.Sprintf("%s: analyzed %s", name, last.CreatedAt.Format(time.RFC3339)))
		case d.versions[name].LastModified.After(last.CreatedAt):
			stale = append(stale, fmt.Sprintf("%s: modified after last analysis", name))
		}
	}

	if len(missing) > 0 {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "coverage",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d flow(s) have never been analyzed", len(missing)),
			Details:  strings.Join(missing, "\n"),
			FixHint:  "Run 'flowscope analyze <flow> --store'",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "coverage",
			Status:   StatusPass,
			Message:  "Every flow has a stored analysis",
		})
	}

	if len(stale) > 0 {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "freshness",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d stored analys(es) are stale", len(stale)),
			Details:  strings.Join(stale, "\n"),
			FixHint:  "Re-run 'flowscope analyze <flow> --store'",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "freshness",
			Status:   StatusPass,
			Message:  "Stored analyses are fresh",
		})
	}
	return nil
}
