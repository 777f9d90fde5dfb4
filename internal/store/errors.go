package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict means a content write supplied an expected
	// version that no longer matches the stored block.
	ErrVersionConflict = errors.New("version conflict")
)
