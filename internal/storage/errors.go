package storage

import "errors"

// ErrNotFound indicates the deployment key or blob does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrConnectionFailed indicates the backing store was unreachable. Reads
// wrapped by WithRetry get one bounded retry on this error; it is safe for
// clients to retry the whole request.
var ErrConnectionFailed = errors.New("storage: connection failed")
