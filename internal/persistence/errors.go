package persistence

import "errors"

// ErrNotFound is returned by LoadSnapshot when nothing has been saved yet.
var ErrNotFound = errors.New("persistence: no snapshot stored")
