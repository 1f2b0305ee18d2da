// Package conv evaluates fingerprint alignment as two chained linear filters.
//
// A projection bank correlates each query with K filters (valid padding along
// time), then a delta stencil subtracts the response delta frames later and
// sums across filters. An offset fires when that difference exceeds a
// threshold, i.e. when a strong correlation onset disappears delta frames on.
// The whole batch is evaluated at once, either as a single GEMM over im2col
// windows or with FFT correlation.
package conv

import (
	"fmt"
	"math"
	"runtime"

	"gonum.org/v1/gonum/mat"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
)

// DefaultDelta is the finite-difference width used when none is configured.
const DefaultDelta = 16

// Backend selects how the projection stage is computed.
type Backend int

const (
	// BackendGEMM multiplies im2col windows by the lowered kernel.
	BackendGEMM Backend = iota
	// BackendFFT correlates with precomputed filter spectra.
	BackendFFT
)

func (b Backend) String() string {
	switch b {
	case BackendGEMM:
		return "gemm"
	case BackendFFT:
		return "fft"
	default:
		return "unknown"
	}
}

// ParseBackend maps a configuration string to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "", "gemm":
		return BackendGEMM, nil
	case "fft":
		return BackendFFT, nil
	default:
		return 0, fmt.Errorf("unknown convolution backend %q", s)
	}
}

// Layout is the orientation of query matrices handed to Run.
type Layout int

const (
	// LayoutChannelsFirst: queries are channels x frames, like feature.Matrix.
	LayoutChannelsFirst Layout = iota
	// LayoutFramesFirst: queries are frames x channels and are transposed on input.
	LayoutFramesFirst
)

// Shape is the fixed query shape an Aligner is built for.
type Shape struct {
	Channels int
	Frames   int
}

type options struct {
	delta     int
	threshold float64
	backend   Backend
	layout    Layout
	workers   int
}

// Option configures Build and NewMatcher.
type Option func(*options)

// WithDelta sets the finite-difference width.
func WithDelta(delta int) Option {
	return func(o *options) {
		o.delta = delta
	}
}

// WithThreshold sets the decision cutoff; responses strictly above it fire.
func WithThreshold(threshold float64) Option {
	return func(o *options) {
		o.threshold = threshold
	}
}

// WithBackend selects the projection backend.
func WithBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithLayout declares the orientation of queries passed to Run.
func WithLayout(l Layout) Option {
	return func(o *options) {
		o.layout = l
	}
}

// WithWorkers bounds the goroutines used by the FFT backend.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

func defaultOptions() *options {
	return &options{
		delta:   DefaultDelta,
		backend: BackendGEMM,
		layout:  LayoutChannelsFirst,
		workers: runtime.NumCPU(),
	}
}

// Aligner is a built two-stage filter for one fixed query shape. It is
// immutable and safe for concurrent use.
type Aligner struct {
	shape      Shape
	projection *Projection
	kernel     *mat.Dense
	delta      *DeltaKernel
	threshold  float64
	backend    Backend
	layout     Layout
	workers    int
	spectra    *filterSpectra
}

// Build validates the configuration and constructs both filter banks.
func Build(p *Projection, shape Shape, opts ...Option) (*Aligner, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.workers < 1 {
		o.workers = 1
	}

	if p.Channels() != shape.Channels {
		return nil, fmt.Errorf("%w: projection spans %d channels, queries have %d",
			align.ErrShapeMismatch, p.Channels(), shape.Channels)
	}
	if o.layout != LayoutChannelsFirst && o.layout != LayoutFramesFirst {
		return nil, fmt.Errorf("unsupported query layout %d", o.layout)
	}
	projected := shape.Frames - p.Width() + 1
	if projected < 1 {
		return nil, fmt.Errorf("%w: filter width %d exceeds query length %d",
			align.ErrInvalidSearchSpace, p.Width(), shape.Frames)
	}
	if o.delta >= projected {
		return nil, fmt.Errorf("%w: delta %d leaves no output for projected length %d",
			align.ErrInvalidSearchSpace, o.delta, projected)
	}
	delta, err := NewDeltaKernel(o.delta, p.Filters())
	if err != nil {
		return nil, err
	}

	a := &Aligner{
		shape:      shape,
		projection: p,
		delta:      delta,
		threshold:  o.threshold,
		backend:    o.backend,
		layout:     o.layout,
		workers:    o.workers,
	}
	switch o.backend {
	case BackendGEMM:
		a.kernel = p.kernelMatrix()
	case BackendFFT:
		a.spectra = newFilterSpectra(p, shape.Frames)
	default:
		return nil, fmt.Errorf("unknown convolution backend %d", o.backend)
	}
	return a, nil
}

// Shape returns the query shape the aligner was built for.
func (a *Aligner) Shape() Shape { return a.shape }

// ProjectedLength is the output length of the projection stage.
func (a *Aligner) ProjectedLength() int {
	return a.shape.Frames - a.projection.Width() + 1
}

// OutputLength is the length of each decision vector.
func (a *Aligner) OutputLength() int {
	return a.ProjectedLength() - a.delta.Width() + 1
}

// Threshold returns the decision cutoff.
func (a *Aligner) Threshold() float64 { return a.threshold }

// Run evaluates the batch and returns one binary decision vector per query:
// 1 where the delta response exceeds the threshold, 0 elsewhere.
func (a *Aligner) Run(queries []*feature.Matrix) ([][]uint8, error) {
	responses, err := a.Responses(queries)
	if err != nil {
		return nil, err
	}
	decisions := make([][]uint8, len(responses))
	for b, resp := range responses {
		d := make([]uint8, len(resp))
		for t, v := range resp {
			if v > a.threshold {
				d[t] = 1
			}
		}
		decisions[b] = d
	}
	return decisions, nil
}

// Responses returns the raw delta-stage responses for the batch.
func (a *Aligner) Responses(queries []*feature.Matrix) ([][]float64, error) {
	projections, err := a.project(queries)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(projections))
	for b, proj := range projections {
		out[b] = a.delta.apply(proj)
	}
	return out, nil
}

// project runs the first stage for every query, returning one
// ProjectedLength x K matrix per query.
func (a *Aligner) project(queries []*feature.Matrix) ([]*mat.Dense, error) {
	inputs := make([]mat.Matrix, len(queries))
	for b, q := range queries {
		in, err := a.orient(q)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", b, err)
		}
		inputs[b] = in
	}
	if len(inputs) == 0 {
		return nil, nil
	}
	if a.backend == BackendFFT {
		return a.spectra.project(inputs, a.workers)
	}
	return a.projectGEMM(inputs), nil
}

// orient checks a query against the build shape and returns it channels x frames.
func (a *Aligner) orient(q *feature.Matrix) (mat.Matrix, error) {
	m := q.Matrix()
	if a.layout == LayoutFramesFirst {
		m = m.T()
	}
	r, c := m.Dims()
	if r != a.shape.Channels || c != a.shape.Frames {
		return nil, fmt.Errorf("%w: query is %dx%d, aligner built for %dx%d",
			align.ErrShapeMismatch, r, c, a.shape.Channels, a.shape.Frames)
	}
	return m, nil
}

// projectGEMM lowers the whole batch into one im2col matrix, one row per
// (query, offset), and multiplies it by the kernel matrix once.
func (a *Aligner) projectGEMM(inputs []mat.Matrix) []*mat.Dense {
	channels := a.shape.Channels
	width := a.projection.Width()
	length := a.ProjectedLength()

	cols := make([]float64, len(inputs)*length*width*channels)
	windows := mat.NewDense(len(inputs)*length, width*channels, cols)
	for b, in := range inputs {
		for t := 0; t < length; t++ {
			row := (b*length + t) * width * channels
			for dt := 0; dt < width; dt++ {
				for ch := 0; ch < channels; ch++ {
					cols[row+dt*channels+ch] = in.At(ch, t+dt)
				}
			}
		}
	}

	var proj mat.Dense
	proj.Mul(windows, a.kernel)

	out := make([]*mat.Dense, len(inputs))
	k := a.projection.Filters()
	for b := range inputs {
		out[b] = mat.DenseCopyOf(proj.Slice(b*length, (b+1)*length, 0, k))
		out[b].Apply(func(_, _ int, v float64) float64 { return snap(v) }, out[b])
	}
	return out
}

// snap rounds v to nine decimal places, or to ten significant digits once
// |v| >= 1, so FFT round-off and exact GEMM sums land on the same value.
// Every projection passes through it before thresholding.
func snap(v float64) float64 {
	mag := math.Abs(v)
	if mag < 1 {
		return math.Round(v*1e9) / 1e9
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	digits := 9 - int(math.Floor(math.Log10(mag)))
	if digits >= 0 {
		p := math.Pow10(digits)
		return math.Round(v*p) / p
	}
	p := math.Pow10(-digits)
	return math.Round(v/p) * p
}
