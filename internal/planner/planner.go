// Package planner diffs the authored migration set against the applied
// history, validates the combination, and selects the ordered subset still
// to be applied.
package planner

import (
	"fmt"
	"slices"

	"github.com/refinery-db/refinery/internal/history"
	"github.com/refinery-db/refinery/internal/migration"
)

// Policy controls which integrity findings abort planning. Relaxed findings
// are reported as diagnostics instead; the affected migrations stay out of
// the plan either way, so re-runs remain deterministic.
type Policy struct {
	AbortDivergent bool
	AbortMissing   bool
}

// DefaultPolicy aborts on both divergent and missing migrations.
func DefaultPolicy() Policy {
	return Policy{AbortDivergent: true, AbortMissing: true}
}

// Diagnostic is a non-fatal finding produced while planning.
type Diagnostic struct {
	Version int64
	Message string
}

// Plan validates authored migrations against the applied history and returns
// the migrations still to apply, in execution order: versioned ascending,
// then unversioned ascending, truncated by the target's version bound.
func Plan(
	authored []migration.Migration,
	applied []history.Record,
	target migration.Target,
	policy Policy,
) ([]migration.Migration, []Diagnostic, error) {
	ordered := slices.Clone(authored)
	slices.SortStableFunc(ordered, migration.Compare)

	records := slices.Clone(applied)
	slices.SortFunc(records, func(a, b history.Record) int {
		switch {
		case a.Version < b.Version:
			return -1
		case a.Version > b.Version:
			return 1
		default:
			return 0
		}
	})

	var diags []Diagnostic

	// Every applied row with an authored counterpart must match it by name
	// and checksum. Applied versions absent from the authored set are
	// informational: history older than the checked-out sources is normal.
	for _, rec := range records {
		idx := slices.IndexFunc(ordered, func(m migration.Migration) bool {
			return m.Version == rec.Version
		})

		if idx < 0 {
			diags = append(diags, Diagnostic{
				Version: rec.Version,
				Message: fmt.Sprintf("applied migration %s is missing from the authored set", rec.AsMigration()),
			})

			continue
		}

		app := rec.AsMigration()
		if !ordered[idx].Equal(app) {
			if policy.AbortDivergent {
				return nil, diags, &DivergentError{Applied: app, Authored: ordered[idx]}
			}

			diags = append(diags, Diagnostic{
				Version: rec.Version,
				Message: fmt.Sprintf("applied migration %s is different than authored one %s",
					app, ordered[idx]),
			})
		}
	}

	// Versions may start at 0, so the empty-history sentinel sits below it.
	lastApplied := int64(-1)
	if len(records) > 0 {
		lastApplied = records[len(records)-1].Version
	}

	appliedVersions := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		appliedVersions[rec.Version] = struct{}{}
	}

	var plan []migration.Migration

	for i, m := range ordered {
		// Sorting places authored entries sharing a kind and version side by
		// side, applied or not.
		if i > 0 && migration.Compare(ordered[i-1], m) == 0 {
			return nil, diags, &RepeatedError{Migration: m}
		}

		if _, ok := appliedVersions[m.Version]; ok {
			continue
		}

		// An unapplied versioned migration below the high-water mark would
		// apply out of order; unversioned migrations are exempt.
		if m.Kind == migration.Versioned && m.Version <= lastApplied {
			if policy.AbortMissing {
				return nil, diags, &MissingError{Migration: m}
			}

			diags = append(diags, Diagnostic{
				Version: m.Version,
				Message: fmt.Sprintf("migration %s is below the last applied version but was never applied", m),
			})

			continue
		}

		plan = append(plan, m)
	}

	if limit, ok := target.Limit(); ok {
		plan = slices.DeleteFunc(plan, func(m migration.Migration) bool {
			return m.Version > limit
		})
	}

	return plan, diags, nil
}
