package feature

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Quantize maps a continuous matrix to binary features: 1 where the value is
// strictly above threshold, 0 elsewhere. Hamming-based alignment expects
// discretized input, so continuous extractors should pass through here first.
func Quantize(m *Matrix, threshold float64) *Matrix {
	out := mat.NewDense(m.Channels(), m.Frames(), nil)
	out.Apply(func(_, _ int, v float64) float64 {
		if v > threshold {
			return 1
		}
		return 0
	}, m.dense)
	return &Matrix{dense: out}
}

// Shift rotates channels circularly by n positions: channel ch of the result is
// channel (ch-n) mod channels of the input. For chroma features this is a pitch
// shift of n semitones.
func Shift(m *Matrix, n int) *Matrix {
	channels := m.Channels()
	n %= channels
	if n < 0 {
		n += channels
	}
	out := mat.NewDense(channels, m.Frames(), nil)
	for ch := 0; ch < channels; ch++ {
		out.SetRow((ch+n)%channels, m.Row(ch))
	}
	return &Matrix{dense: out}
}

// PitchVariants returns the original matrix followed by its shifts by
// -maxShift..-1 and 1..maxShift channels. Variant 0 is always the unshifted input.
func PitchVariants(m *Matrix, maxShift int) ([]*Matrix, error) {
	if maxShift < 0 {
		return nil, fmt.Errorf("pitch shift range must be non-negative, got %d", maxShift)
	}
	if 2*maxShift >= m.Channels() {
		return nil, fmt.Errorf("pitch shift range %d wraps around %d channels", maxShift, m.Channels())
	}
	variants := make([]*Matrix, 0, 2*maxShift+1)
	variants = append(variants, m)
	for s := 1; s <= maxShift; s++ {
		variants = append(variants, Shift(m, -s), Shift(m, s))
	}
	return variants, nil
}
