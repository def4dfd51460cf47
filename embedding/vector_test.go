package embedding

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

const epsilon = 1e-5

func TestNormalizeL2UnitLength(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	v := make([]float32, 512)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}

	NormalizeL2(v)
	assert.InDelta(t, 1.0, Norm(v), epsilon)
}

func TestNormalizeL2ZeroVector(t *testing.T) {
	v := make([]float32, 8)
	NormalizeL2(v)
	assert.Equal(t, make([]float32, 8), v)
}

func TestSimilarityIdenticalVectors(t *testing.T) {
	v := make([]float32, 512)
	for i := range v {
		v[i] = 1
	}
	NormalizeL2(v)

	assert.InDelta(t, 1.0, Similarity(v, v), epsilon)
}

func TestSimilarityOrthogonalVectors(t *testing.T) {
	a := make([]float32, 512)
	b := make([]float32, 512)
	for i := 0; i < 256; i++ {
		a[i] = 1
	}
	for i := 256; i < 512; i++ {
		b[i] = 1
	}
	NormalizeL2(a)
	NormalizeL2(b)

	assert.InDelta(t, 0.0, Similarity(a, b), epsilon)
}

func TestSimilarityOppositeVectors(t *testing.T) {
	a := make([]float32, 512)
	b := make([]float32, 512)
	for i := range a {
		a[i] = 1
		b[i] = -1
	}
	NormalizeL2(a)
	NormalizeL2(b)

	assert.InDelta(t, -1.0, Similarity(a, b), epsilon)
}

func TestSimilarityBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		a := make([]float32, 128)
		b := make([]float32, 128)
		for i := range a {
			a[i] = rng.Float32()*2 - 1
			b[i] = rng.Float32()*2 - 1
		}
		NormalizeL2(a)
		NormalizeL2(b)

		s := float64(Similarity(a, b))
		assert.LessOrEqual(t, s, 1.0+epsilon)
		assert.GreaterOrEqual(t, s, -1.0-epsilon)
	}
}
