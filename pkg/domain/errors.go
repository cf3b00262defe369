package domain

import (
	"errors"
	"fmt"

	"dbtlineage/pkg/lineage"
)

// Sentinel errors shared across the store, matcher and ingestion layers.
var (
	// ErrInvalidInput marks malformed caller data; recoverable per row.
	ErrInvalidInput = lineage.ErrInvalidInput
	// ErrNotFound marks a missing referenced entity.
	ErrNotFound = errors.New("entity not found")
	// ErrAlreadyExists marks an ID or lineage hash collision on create.
	ErrAlreadyExists = errors.New("entity already exists")
	// ErrStorage marks a repository lookup or commit failure.
	ErrStorage = errors.New("storage failure")
	// ErrImmutable marks an attempt to change a write-once field.
	ErrImmutable = errors.New("field is immutable")
	// ErrInvalidTransition marks an illegal build status change.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// NotFoundError reports which entity could not be resolved.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
