package planner

import (
	"errors"
	"fmt"

	"github.com/refinery-db/refinery/internal/migration"
)

// ErrDivergent matches any DivergentError via errors.Is.
var ErrDivergent = errors.New("applied migration differs from authored one")

// ErrMissing matches any MissingError via errors.Is.
var ErrMissing = errors.New("migration missing")

// ErrRepeated matches any RepeatedError via errors.Is.
var ErrRepeated = errors.New("migration repeated")

// DivergentError reports an applied migration whose authored counterpart has
// a different name or checksum.
type DivergentError struct {
	Applied  migration.Migration
	Authored migration.Migration
}

func (e *DivergentError) Error() string {
	return fmt.Sprintf("applied migration %s is different than authored one %s (checksum %s vs %s)",
		e.Applied, e.Authored, e.Applied.ChecksumString(), e.Authored.ChecksumString())
}

func (e *DivergentError) Is(target error) bool { return target == ErrDivergent }

// MissingError reports an authored versioned migration whose version sits
// below the applied high-water mark yet was never applied.
type MissingError struct {
	Migration migration.Migration
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("migration %s is below the last applied version but was never applied", e.Migration)
}

func (e *MissingError) Is(target error) bool { return target == ErrMissing }

// RepeatedError reports two authored migrations sharing a kind and version.
type RepeatedError struct {
	Migration migration.Migration
}

func (e *RepeatedError) Error() string {
	return fmt.Sprintf("migration %s is repeated, migration versions must be unique", e.Migration)
}

func (e *RepeatedError) Is(target error) bool { return target == ErrRepeated }
