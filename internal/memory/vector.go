package memory

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeVector packs a float32 embedding into a little-endian byte blob for
// storage in vec_memories.embedding.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a byte blob back into a float32 embedding.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("memory: malformed embedding blob (%d bytes)", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

// cosineDistance returns 1 - cosine_similarity(a, b), a non-negative float
// in [0, 2]. Vectors of mismatched length (should not happen within one
// embedding model) are treated as maximally distant rather than panicking.
func cosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Numerical noise can push similarity slightly outside [-1, 1].
	if similarity > 1 {
		similarity = 1
	} else if similarity < -1 {
		similarity = -1
	}

	distance := 1 - similarity
	if distance < 0 {
		distance = 0
	}
	return float32(distance)
}
