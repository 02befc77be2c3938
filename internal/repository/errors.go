package repository

import "errors"

// ErrNotFound is returned by every backend when the addressed row does not exist.
var ErrNotFound = errors.New("not found")
