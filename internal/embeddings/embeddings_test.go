// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockEmbedderIsDeterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	a, err := e.EmbedText(context.Background(), "Revenue grew 25% in Q3.")
	require.NoError(t, err)
	b, err := e.EmbedText(context.Background(), "Revenue grew 25% in Q3.")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 16)
}

func TestNewEmbedderUnknownTypeErrors(t *testing.T) {
	_, err := NewEmbedder("unknown", nil)
	require.Error(t, err)
}

func TestNewEmbedderMockRespectsConfiguredDimension(t *testing.T) {
	e, err := NewEmbedder("mock", map[string]string{"dimension": "32"})
	require.NoError(t, err)
	require.Equal(t, 32, e.Dimension())
}
