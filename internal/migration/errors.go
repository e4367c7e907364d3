package migration

import "errors"

// ErrInvalidName indicates a file name that does not follow the
// (V|U){version}__{name}.sql convention.
var ErrInvalidName = errors.New("migration name must be in the format (V|U){version}__{name}.sql")

// ErrInvalidVersion indicates a version component that is not a valid integer
// within the configured width.
var ErrInvalidVersion = errors.New("migration version must be a valid integer")

// ErrDuplicateVersion indicates two migrations sharing the same kind and version.
var ErrDuplicateVersion = errors.New("migration versions must be unique")
