package feature

import (
	"encoding/json"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Matrix is an immutable channels x frames feature matrix. Rows are feature
// channels (e.g. 12 chroma bins or 64 PCA components), columns are time frames.
//
// A Matrix never exposes its backing storage for writing; constructors copy the
// caller's data so the caller may reuse its buffers.
type Matrix struct {
	dense *mat.Dense
}

var errEmptyMatrix = errors.New("feature matrix must have at least one channel and one frame")

// New builds a Matrix from row-major data (channel 0 first).
func New(channels, frames int, data []float64) (*Matrix, error) {
	if channels <= 0 || frames <= 0 {
		return nil, errEmptyMatrix
	}
	if len(data) != channels*frames {
		return nil, fmt.Errorf("feature data length %d does not match %dx%d", len(data), channels, frames)
	}
	buf := make([]float64, len(data))
	copy(buf, data)
	return &Matrix{dense: mat.NewDense(channels, frames, buf)}, nil
}

// FromRows builds a Matrix from one slice per channel.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errEmptyMatrix
	}
	frames := len(rows[0])
	data := make([]float64, 0, len(rows)*frames)
	for i, r := range rows {
		if len(r) != frames {
			return nil, fmt.Errorf("channel %d has %d frames, expected %d", i, len(r), frames)
		}
		data = append(data, r...)
	}
	return &Matrix{dense: mat.NewDense(len(rows), frames, data)}, nil
}

// Fill returns a channels x frames matrix with every element set to v.
func Fill(channels, frames int, v float64) (*Matrix, error) {
	if channels <= 0 || frames <= 0 {
		return nil, errEmptyMatrix
	}
	data := make([]float64, channels*frames)
	for i := range data {
		data[i] = v
	}
	return &Matrix{dense: mat.NewDense(channels, frames, data)}, nil
}

// FromDense copies any gonum matrix into a feature Matrix.
func FromDense(m mat.Matrix) (*Matrix, error) {
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errEmptyMatrix
	}
	return &Matrix{dense: mat.DenseCopyOf(m)}, nil
}

// Channels returns the number of feature channels (rows).
func (m *Matrix) Channels() int {
	r, _ := m.dense.Dims()
	return r
}

// Frames returns the number of time frames (columns).
func (m *Matrix) Frames() int {
	_, c := m.dense.Dims()
	return c
}

// At returns the value of channel ch at frame t.
func (m *Matrix) At(ch, t int) float64 {
	return m.dense.At(ch, t)
}

// Row returns a copy of one channel across all frames.
func (m *Matrix) Row(ch int) []float64 {
	return mat.Row(nil, ch, m.dense)
}

// Window returns a read-only view of frames [start, start+width).
func (m *Matrix) Window(start, width int) mat.Matrix {
	return m.dense.Slice(0, m.Channels(), start, start+width)
}

// Matrix returns a read-only view of the whole matrix for use with gonum.
func (m *Matrix) Matrix() mat.Matrix {
	return m.dense
}

// Equal reports whether both matrices have the same shape and elements.
func (m *Matrix) Equal(other *Matrix) bool {
	if other == nil {
		return false
	}
	return mat.Equal(m.dense, other.dense)
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{dense: mat.DenseCopyOf(m.dense)}
}

// Rows returns a copy of the matrix as one slice per channel.
func (m *Matrix) Rows() [][]float64 {
	rows := make([][]float64, m.Channels())
	for ch := range rows {
		rows[ch] = m.Row(ch)
	}
	return rows
}

func (m *Matrix) String() string {
	return fmt.Sprintf("feature.Matrix[%dx%d]", m.Channels(), m.Frames())
}

// MarshalJSON encodes the matrix as an array of channel rows.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Rows())
}

// UnmarshalJSON decodes an array of channel rows.
func (m *Matrix) UnmarshalJSON(b []byte) error {
	var rows [][]float64
	if err := json.Unmarshal(b, &rows); err != nil {
		return fmt.Errorf("decoding feature rows: %w", err)
	}
	parsed, err := FromRows(rows)
	if err != nil {
		return err
	}
	m.dense = parsed.dense
	return nil
}

// MarshalBinary encodes the matrix with gonum's binary format.
func (m *Matrix) MarshalBinary() ([]byte, error) {
	return m.dense.MarshalBinary()
}

// UnmarshalBinary decodes a matrix produced by MarshalBinary.
func (m *Matrix) UnmarshalBinary(b []byte) error {
	var d mat.Dense
	if err := d.UnmarshalBinary(b); err != nil {
		return fmt.Errorf("decoding feature matrix: %w", err)
	}
	m.dense = &d
	return nil
}
