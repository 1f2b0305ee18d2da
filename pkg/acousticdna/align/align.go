// Package align locates a short feature matrix inside a longer one.
//
// An Aligner slides the query along the time axis of a reference and reports
// the offset with the smallest distance. BruteForce scores every offset with a
// fractional Hamming distance; the conv package provides a convolution-based
// Aligner with the same contract.
package align

import (
	"errors"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
)

// Error taxonomy shared by every aligner and by the ranking engine. Call sites
// wrap these with the offending sizes; match with errors.Is.
var (
	// ErrShapeMismatch means channel counts or configured time lengths disagree
	// between a query, a reference or a kernel.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidSearchSpace means no valid offset exists: the reference is
	// shorter than the query, or a kernel leaves no room for the output.
	ErrInvalidSearchSpace = errors.New("invalid search space")

	// ErrRankNotFound means a ground-truth reference is absent from a ranking.
	ErrRankNotFound = errors.New("ground truth not found in results")
)

// Alignment is the best placement of a query inside a reference.
type Alignment struct {
	Offset   int     // first reference frame covered by the query
	Distance float64 // normalized dissimilarity, 0 is a perfect match
}

// Aligner compares a query against one reference. Implementations must be safe
// for concurrent use.
type Aligner interface {
	Compare(query, reference *feature.Matrix) (Alignment, error)
}
