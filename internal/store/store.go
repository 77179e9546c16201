// Package store holds the write paths for channels, videos, transcripts and
// knowledge entries. Every function takes a *gorm.DB that may be a
// transaction; index maintenance and cascades run on that same handle so
// they commit or roll back with the source rows.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a target row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentUpdate is returned when a conditional update finds the
	// row changed since it was read.
	ErrConcurrentUpdate = errors.New("changed concurrently")
)

func notFound(kind string, id any) error {
	return fmt.Errorf("store: %s %v: %w", kind, id, ErrNotFound)
}
