package executor

import "github.com/refinery-db/refinery/internal/migration"

// Report lists the migrations committed during a run. A run that fails
// partway still returns the report of everything committed before the
// failure, attached to the error.
type Report struct {
	applied []migration.Migration
}

// Applied returns the committed migrations in application order.
func (r *Report) Applied() []migration.Migration {
	if r == nil {
		return nil
	}

	return r.applied
}
