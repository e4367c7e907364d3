package history

import "errors"

// ErrIntegrity indicates the history table holds rows this tool could not
// have written, such as timestamps or checksums in an unknown format.
var ErrIntegrity = errors.New("schema history table does not match expectations")
