package align

import (
	"fmt"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
)

// BruteForce scores every offset of the query inside the reference with the
// fractional Hamming distance and keeps the minimum.
type BruteForce struct{}

// NewBruteForce returns a brute-force aligner.
func NewBruteForce() *BruteForce {
	return &BruteForce{}
}

// Compare returns the offset in [0, n-k] whose window differs from the query
// in the fewest elements. Ties keep the earliest offset.
func (BruteForce) Compare(query, reference *feature.Matrix) (Alignment, error) {
	c := query.Channels()
	k := query.Frames()
	n := reference.Frames()

	if reference.Channels() != c {
		return Alignment{}, fmt.Errorf("%w: query has %d channels, reference has %d",
			ErrShapeMismatch, c, reference.Channels())
	}
	if n < k {
		return Alignment{}, fmt.Errorf("%w: reference has %d frames, query needs %d",
			ErrInvalidSearchSpace, n, k)
	}

	total := c * k
	q := flatten(query)
	ref := flatten(reference)

	bestIndex := 0
	bestMismatches := total + 1
	for i := 0; i <= n-k; i++ {
		mismatches := windowMismatches(q, ref, c, k, n, i, bestMismatches)
		if mismatches < bestMismatches {
			bestMismatches = mismatches
			bestIndex = i
			if mismatches == 0 {
				break
			}
		}
	}

	return Alignment{
		Offset:   bestIndex,
		Distance: float64(bestMismatches) / float64(total),
	}, nil
}

// HammingDistance returns the fraction of differing elements between two
// equally shaped matrices.
func HammingDistance(a, b *feature.Matrix) (float64, error) {
	if a.Channels() != b.Channels() || a.Frames() != b.Frames() {
		return 0, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch,
			a.Channels(), a.Frames(), b.Channels(), b.Frames())
	}
	c, k := a.Channels(), a.Frames()
	mismatches := windowMismatches(flatten(a), flatten(b), c, k, k, 0, c*k+1)
	return float64(mismatches) / float64(c*k), nil
}

// windowMismatches counts differing elements between the query and the
// reference window starting at offset. It gives up once the count reaches
// limit, since the window can no longer win.
func windowMismatches(q, ref []float64, c, k, n, offset, limit int) int {
	mismatches := 0
	for ch := 0; ch < c; ch++ {
		qRow := q[ch*k : ch*k+k]
		rRow := ref[ch*n+offset : ch*n+offset+k]
		for t, v := range qRow {
			if v != rRow[t] {
				mismatches++
			}
		}
		if mismatches >= limit {
			return mismatches
		}
	}
	return mismatches
}

// flatten returns the matrix as one row-major slice.
func flatten(m *feature.Matrix) []float64 {
	c, f := m.Channels(), m.Frames()
	out := make([]float64, 0, c*f)
	for ch := 0; ch < c; ch++ {
		out = append(out, m.Row(ch)...)
	}
	return out
}
