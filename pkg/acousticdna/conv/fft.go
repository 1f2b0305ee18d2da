package conv

import (
	"github.com/mjibson/go-dsp/fft"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// filterSpectra holds the spectrum of every time-reversed filter row, zero
// padded to the linear-convolution length of a fixed-size query. The query
// length is fixed at build time, so these are computed once.
type filterSpectra struct {
	size     int                // padded FFT length: frames + width - 1
	width    int                // filter width T
	length   int                // projected output length
	channels int
	bins     [][][]complex128 // [filter][channel][bin]
}

func newFilterSpectra(p *Projection, frames int) *filterSpectra {
	size := frames + p.Width() - 1
	s := &filterSpectra{
		size:     size,
		width:    p.Width(),
		length:   frames - p.Width() + 1,
		channels: p.Channels(),
		bins:     make([][][]complex128, p.Filters()),
	}
	for k := range s.bins {
		f := p.Filter(k)
		s.bins[k] = make([][]complex128, p.Channels())
		for ch := 0; ch < p.Channels(); ch++ {
			padded := make([]float64, size)
			row := f.Row(ch)
			for dt, v := range row {
				padded[len(row)-1-dt] = v
			}
			s.bins[k][ch] = fft.FFTReal(padded)
		}
	}
	return s
}

// project correlates every input with every filter, one goroutine per query
// bounded by workers.
func (s *filterSpectra) project(inputs []mat.Matrix, workers int) ([]*mat.Dense, error) {
	out := make([]*mat.Dense, len(inputs))
	var g errgroup.Group
	g.SetLimit(workers)
	for b, in := range inputs {
		g.Go(func() error {
			out[b] = s.projectOne(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// projectOne computes proj[t,k] = sum_ch sum_dt f_k[ch,dt] * in[ch,t+dt] as
// real(IFFT(sum_ch FFT(in_ch) * FFT(rev(f_k,ch))))[t+width-1].
func (s *filterSpectra) projectOne(in mat.Matrix) *mat.Dense {
	inputBins := make([][]complex128, s.channels)
	for ch := range inputBins {
		padded := make([]float64, s.size)
		mat.Row(padded[:s.size-s.width+1], ch, in)
		inputBins[ch] = fft.FFTReal(padded)
	}

	proj := mat.NewDense(s.length, len(s.bins), nil)
	acc := make([]complex128, s.size)
	for k, filter := range s.bins {
		clear(acc)
		for ch, fb := range filter {
			ib := inputBins[ch]
			for i := range acc {
				acc[i] += ib[i] * fb[i]
			}
		}
		corr := fft.IFFT(acc)
		for t := 0; t < s.length; t++ {
			proj.Set(t, k, snap(real(corr[t+s.width-1])))
		}
	}
	return proj
}
