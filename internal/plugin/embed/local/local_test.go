package local

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbedTexts_DeterministicUnitVectors(t *testing.T) {
	e := New(64)
	vecs, err := e.EmbedTexts(context.Background(), []string{"Hello world", "hello, WORLD!", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		require.Len(t, v, 64)
		require.InDelta(t, 1.0, cosine(v, v), 1e-6)
	}
	require.Equal(t, vecs[0], vecs[1])
}

func TestEmbedTexts_SharedTokensAreCloser(t *testing.T) {
	e := New(1024)
	vecs, err := e.EmbedTexts(context.Background(), []string{"hello", "hello world", "agent reply"})
	require.NoError(t, err)
	require.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

func TestModelNameIncludesDimension(t *testing.T) {
	require.Equal(t, "hashed-bow-32", New(32).ModelName())
	require.Equal(t, defaultDimension, New(0).Dimension())
}
