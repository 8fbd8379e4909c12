// Package uuid generates operation run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// RunIDs issues UUIDv7 run IDs. Their time-ordered prefix keeps
// operation_runs inserts clustered on the primary key index.
type RunIDs struct{}

// New returns a RunIDs generator.
func New() *RunIDs {
	return &RunIDs{}
}

// NewID returns a UUIDv7 string.
func (RunIDs) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}
