package conv

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
)

// Projection is a bank of K filters, each channels x width, correlated with a
// query along time with valid padding.
type Projection struct {
	filters  []*feature.Matrix
	channels int
	width    int
}

// NewProjection builds a filter bank. Every filter must have the same shape.
func NewProjection(filters ...*feature.Matrix) (*Projection, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: projection needs at least one filter", align.ErrShapeMismatch)
	}
	channels, width := filters[0].Channels(), filters[0].Frames()
	for i, f := range filters {
		if f.Channels() != channels || f.Frames() != width {
			return nil, fmt.Errorf("%w: filter %d is %dx%d, filter 0 is %dx%d",
				align.ErrShapeMismatch, i, f.Channels(), f.Frames(), channels, width)
		}
	}
	bank := make([]*feature.Matrix, len(filters))
	copy(bank, filters)
	return &Projection{filters: bank, channels: channels, width: width}, nil
}

// ProjectionFromTensor builds a filter bank from a flat [filters][width][channels]
// tensor, the layout PCA component exports use (time-major within a filter).
func ProjectionFromTensor(data []float64, filters, width, channels int) (*Projection, error) {
	if filters <= 0 || width <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: projection tensor %dx%dx%d", align.ErrShapeMismatch, filters, width, channels)
	}
	if len(data) != filters*width*channels {
		return nil, fmt.Errorf("%w: projection tensor has %d values, expected %d",
			align.ErrShapeMismatch, len(data), filters*width*channels)
	}
	bank := make([]*feature.Matrix, filters)
	for k := range bank {
		d := mat.NewDense(channels, width, nil)
		base := k * width * channels
		for dt := 0; dt < width; dt++ {
			for ch := 0; ch < channels; ch++ {
				d.Set(ch, dt, data[base+dt*channels+ch])
			}
		}
		f, err := feature.FromDense(d)
		if err != nil {
			return nil, err
		}
		bank[k] = f
	}
	return &Projection{filters: bank, channels: channels, width: width}, nil
}

// Filters returns K, the number of projected output channels.
func (p *Projection) Filters() int { return len(p.filters) }

// Width returns T, the temporal extent of each filter.
func (p *Projection) Width() int { return p.width }

// Channels returns the feature channel count each filter spans.
func (p *Projection) Channels() int { return p.channels }

// Filter returns filter k.
func (p *Projection) Filter(k int) *feature.Matrix { return p.filters[k] }

// kernelMatrix lowers the bank to a (width*channels) x K matrix whose row
// dt*channels+ch holds every filter's tap at (ch, dt). An im2col window row
// multiplied by it yields all K projections for one offset.
func (p *Projection) kernelMatrix() *mat.Dense {
	kern := mat.NewDense(p.width*p.channels, len(p.filters), nil)
	for k, f := range p.filters {
		for dt := 0; dt < p.width; dt++ {
			for ch := 0; ch < p.channels; ch++ {
				kern.Set(dt*p.channels+ch, k, f.At(ch, dt))
			}
		}
	}
	return kern
}

// DeltaKernel is the finite-difference stage: (delta+1) taps per projected
// channel, +1 on the first and -1 on the last, summed into one output.
type DeltaKernel struct {
	taps *mat.Dense // (delta+1) x K
}

// NewDeltaKernel builds the stencil for the given delta, replicated across
// filters projected channels.
func NewDeltaKernel(delta, filters int) (*DeltaKernel, error) {
	if delta < 1 {
		return nil, fmt.Errorf("%w: delta must be at least 1, got %d", align.ErrInvalidSearchSpace, delta)
	}
	taps := mat.NewDense(delta+1, filters, nil)
	for k := 0; k < filters; k++ {
		taps.Set(0, k, 1)
		taps.Set(delta, k, -1)
	}
	return &DeltaKernel{taps: taps}, nil
}

// Width returns delta+1.
func (d *DeltaKernel) Width() int {
	r, _ := d.taps.Dims()
	return r
}

// Tap returns the stencil weight at position j for projected channel k.
func (d *DeltaKernel) Tap(j, k int) float64 {
	return d.taps.At(j, k)
}

// apply runs the stencil over a projected response (L x K), producing
// L-delta values: out[t] = sum_j sum_k taps[j,k] * proj[t+j,k].
func (d *DeltaKernel) apply(proj mat.Matrix) []float64 {
	rows, _ := proj.Dims()
	width := d.Width()
	// mixed[t,j] = sum_k proj[t,k] * taps[j,k]
	var mixed mat.Dense
	mixed.Mul(proj, d.taps.T())

	out := make([]float64, rows-width+1)
	for t := range out {
		sum := 0.0
		for j := 0; j < width; j++ {
			sum += mixed.At(t+j, j)
		}
		out[t] = sum
	}
	return out
}
