package conv

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
)

// Matcher adapts the two-stage filter to align.Aligner: the query becomes the
// single projection filter and the reference is the input. The reference is
// read as delta silent frames past its end so every valid offset has a delta
// response.
//
// With one filter the projection is a plain sliding dot product, so Matcher
// computes it directly in O(frames) memory. Backend and workers only affect
// Build; threshold and delta apply here.
//
// Features should be bipolar (for example -1/+1) so that the projection at an
// offset measures agreement; with 0/1 features silent regions never correlate.
type Matcher struct {
	opts []Option
}

// NewMatcher returns a Matcher. Delta defaults to 1 here since references are
// only padded by delta frames.
func NewMatcher(opts ...Option) *Matcher {
	return &Matcher{opts: append([]Option{WithDelta(1)}, opts...)}
}

// Compare picks, among offsets whose delta response fires, the one with the
// highest projection (earliest on ties). The distance is one minus that
// projection relative to the query energy, clamped to [0, 1]; it is 1 when
// nothing fires.
func (m *Matcher) Compare(query, reference *feature.Matrix) (align.Alignment, error) {
	c, k, n := query.Channels(), query.Frames(), reference.Frames()
	if reference.Channels() != c {
		return align.Alignment{}, fmt.Errorf("%w: query has %d channels, reference has %d",
			align.ErrShapeMismatch, c, reference.Channels())
	}
	if n < k {
		return align.Alignment{}, fmt.Errorf("%w: reference has %d frames, query needs %d",
			align.ErrInvalidSearchSpace, n, k)
	}

	o := defaultOptions()
	for _, opt := range m.opts {
		opt(o)
	}
	stencil, err := NewDeltaKernel(o.delta, 1)
	if err != nil {
		return align.Alignment{}, err
	}

	projection := slideProjection(query, reference, o.delta)
	response := stencil.apply(mat.NewVecDense(len(projection), projection))

	energy := queryEnergy(query)
	best := align.Alignment{Distance: 1}
	bestProj := 0.0
	found := false
	for t, v := range response {
		if v <= o.threshold {
			continue
		}
		p := projection[t]
		if !found || p > bestProj {
			found = true
			bestProj = p
			best.Offset = t
		}
	}
	if found && energy > 0 {
		score := bestProj / energy
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		best.Distance = 1 - score
	}
	return best, nil
}

// slideProjection returns P[t] = sum over channels of the query row dotted
// with the reference row starting at frame t, for t in [0, n-k+delta]. Frames
// past the end of the reference read as zero.
func slideProjection(query, reference *feature.Matrix, delta int) []float64 {
	k, n := query.Frames(), reference.Frames()
	out := make([]float64, n-k+1+delta)
	for ch := 0; ch < query.Channels(); ch++ {
		q := query.Row(ch)
		r := reference.Row(ch)
		for t := range out {
			end := min(t+k, n)
			if end <= t {
				break
			}
			out[t] += floats.Dot(q[:end-t], r[t:end])
		}
	}
	for t, v := range out {
		out[t] = snap(v)
	}
	return out
}

func queryEnergy(q *feature.Matrix) float64 {
	energy := 0.0
	for ch := 0; ch < q.Channels(); ch++ {
		row := q.Row(ch)
		energy += floats.Dot(row, row)
	}
	return energy
}
