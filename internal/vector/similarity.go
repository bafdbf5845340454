package vector

import "math"

// normEpsilon bounds the divisor used by Normalize.
const normEpsilon = 1e-12

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
// Every backend scores through this function so that rankings agree bit for bit.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	n := len(a)
	i := 0
	// Unrolled, but the accumulation order is still strictly left to right.
	for ; i+4 <= n; i += 4 {
		dot += float64(a[i]) * float64(b[i])
		dot += float64(a[i+1]) * float64(b[i+1])
		dot += float64(a[i+2]) * float64(b[i+2])
		dot += float64(a[i+3]) * float64(b[i+3])
	}
	for ; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v, dividing by max(||v||, epsilon).
// A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	norm := L2Norm(v)
	if norm == 0 {
		return out
	}
	div := math.Max(norm, normEpsilon)
	for i := range out {
		out[i] = float32(float64(out[i]) / div)
	}
	return out
}

func isFinite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// better reports whether a ranks ahead of b: higher score first, lower position on ties.
func better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Position < b.Position
}
