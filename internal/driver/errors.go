package driver

import "errors"

// ErrLockNotAcquired indicates the advisory lock is already held by another
// process.
var ErrLockNotAcquired = errors.New("migration lock not acquired")

// ErrConnectionFailed indicates a connection to the database could not be
// established.
var ErrConnectionFailed = errors.New("database connection failed")

// ErrNoTransaction indicates Commit or Rollback without a matching Begin.
var ErrNoTransaction = errors.New("no transaction in progress")

// ErrTransactionActive indicates Begin while a transaction is already open.
var ErrTransactionActive = errors.New("transaction already in progress")
