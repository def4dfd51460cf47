package embedding

import "math"

// NormalizeL2 scales v to unit length in place and returns it. A zero
// vector is returned unchanged since it has no direction to preserve.
func NormalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Similarity returns the dot product of two already-normalized vectors,
// in [-1, 1]. Inputs are not re-normalized here: normalization happens
// once at encode time, not on the retrieval hot path, so the score is
// only meaningful for unit vectors.
func Similarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
