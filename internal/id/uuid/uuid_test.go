// Package uuid includes tests for the UUID generator wrapper.
package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestGeneratorNewID ensures generated IDs are unique and valid UUIDs.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1 := gen.NewID()
	id2 := gen.NewID()
	require.NotEqual(t, id1, id2)
	require.NotEqual(t, goUUID.Nil, id1)
	require.NotEqual(t, goUUID.Nil, id2)
}

// TestGeneratorNewIDOrdered checks v7 IDs sort by generation time.
func TestGeneratorNewIDOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	first := gen.NewID()
	second := gen.NewID()
	if first.Version() == 7 && second.Version() == 7 {
		require.LessOrEqual(t, first.String(), second.String())
	}
}
