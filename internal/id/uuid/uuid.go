// Package uuid provides ID generation for jobs and recipe records.
package uuid

import (
	"github.com/google/uuid"
)

// Generator mints UUIDs, preferring time-ordered v7 so listings sort by
// creation without a secondary index.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID, v7 when the system clock cooperates and random v4
// otherwise.
func (Generator) NewID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}
