package main

import (
	"context"
	"fmt"
	"io"

	"github.com/couchcryptid/monitoring-gap-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/monitoring-gap-etl/internal/config"
	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that every source and coordinate file can be analyzed",
		Long: `Read every configured file and check it has the required columns and
parseable rows, without running the analysis.

Examples:
  gapreport validate --sources sources.yaml
  gapreport validate --source castnet=castnet.csv --coords sites.csv`,
		RunE: runValidate,
	}
	addManifestFlags(cmd)
	return cmd
}

// phase tracks pass/fail for one validated input.
type phase struct {
	name   string
	notes  []string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func runValidate(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	manifest, err := manifestFromFlags(cmd)
	if err != nil {
		return err
	}

	phases := validateManifest(cmd.Context(), csvsource.NewReader(logger), manifest)
	if !printPhases(cmd.OutOrStdout(), phases) {
		return fmt.Errorf("validation failed")
	}
	return nil
}

// validateManifest reads every source and coordinate file and returns one
// phase per source, plus one for the coordinate files when configured.
func validateManifest(ctx context.Context, r *csvsource.Reader, m *config.Manifest) []*phase {
	var phases []*phase
	for _, spec := range m.Sources {
		p := &phase{name: "source " + spec.Label}
		phases = append(phases, p)

		t, err := r.Extract(ctx, spec.Label, spec.Paths)
		if err != nil {
			p.errorf("%v", err)
			continue
		}
		checkObservations(p, t, spec.Columns)
	}

	if len(m.Coordinates.Paths) > 0 {
		p := &phase{name: "coordinates"}
		phases = append(phases, p)

		var tables []domain.RawTable
		for _, path := range m.Coordinates.Paths {
			t, err := r.Extract(ctx, path, []string{path})
			if err != nil {
				p.errorf("%v", err)
				continue
			}
			tables = append(tables, t)
		}
		if p.passed() {
			checkCoordinates(p, tables, m.Coordinates.Columns)
		}
	}
	return phases
}

func checkObservations(p *phase, t domain.RawTable, cols domain.ObservationColumns) {
	observations, stats, err := domain.ParseObservations(t, cols)
	if err != nil {
		p.errorf("%v", err)
		return
	}
	if len(observations) == 0 {
		p.errorf("no usable rows out of %d", stats.RowsRead)
		return
	}
	p.notef("%d rows, %d usable", stats.RowsRead, len(observations))
	if stats.MissingSiteID > 0 {
		p.notef("%d rows without a site id", stats.MissingSiteID)
	}
	if stats.InvalidStart > 0 {
		p.notef("%d rows with an unusable interval start", stats.InvalidStart)
	}
	if stats.InvalidEnd > 0 {
		p.notef("%d rows with an unparseable interval end", stats.InvalidEnd)
	}
}

func checkCoordinates(p *phase, tables []domain.RawTable, cols domain.CoordinateColumns) {
	idx, stats, err := domain.BuildCoordinateIndex(tables, cols)
	if err != nil {
		p.errorf("%v", err)
		return
	}
	if idx.Len() == 0 {
		p.errorf("no usable coordinates out of %d rows", stats.Rows)
		return
	}
	p.notef("%d sites from %d rows", idx.Len(), stats.Rows)
	if stats.Invalid > 0 {
		p.notef("%d rows with a blank site id or out-of-range coordinates", stats.Invalid)
	}
	if stats.Duplicates > 0 {
		p.notef("%d duplicate site rows ignored", stats.Duplicates)
	}
}

// printPhases writes the PASS/FAIL summary and details, and reports whether
// every phase passed.
func printPhases(w io.Writer, phases []*phase) bool {
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-32s %s\n", p.name, status)
		for _, n := range p.notes {
			fmt.Fprintf(w, "      %s\n", n)
		}
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
	} else {
		fmt.Fprintln(w, "\nValidation FAILED.")
	}
	return allPassed
}
