package repository

import "errors"

// ErrNotFound is returned by mutations that target a row that does not exist.
var ErrNotFound = errors.New("not found")

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func isNoRows(err error) bool {
	return err != nil && err.Error() == "no rows in result set"
}
