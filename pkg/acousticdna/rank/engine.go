// Package rank orders references by how well a query aligns with them and
// scores those orderings against ground truth.
package rank

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
)

// Reference is one searchable item: an ordered set of pitch variants of the
// same underlying recording.
type Reference struct {
	ID       string
	Name     string
	Variants []*feature.Matrix
}

// SearchResult is the best match of a query against one reference.
type SearchResult struct {
	ReferenceIndex int     // position of the reference in the searched collection
	Distance       float64 // best distance over all variants
	Variant        int     // variant that produced Distance
	Offset         int     // frame offset within that variant
}

// Logger is the subset of pkg/logger the engine writes to.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// ProgressFunc is called after each evaluated query with the number done so
// far and the total.
type ProgressFunc func(done, total int)

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds how many references are compared concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithProgress registers a callback for EvaluateMRR.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// Engine ranks references with a single Aligner. It holds no per-call state
// and may be shared between goroutines.
type Engine struct {
	aligner  align.Aligner
	workers  int
	log      Logger
	progress ProgressFunc
}

// NewEngine returns an Engine backed by the given aligner.
func NewEngine(aligner align.Aligner, opts ...Option) *Engine {
	e := &Engine{
		aligner: aligner,
		workers: runtime.NumCPU(),
		log:     noopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Aligner returns the aligner the engine compares with.
func (e *Engine) Aligner() align.Aligner {
	return e.aligner
}

// Search compares the query against every variant of every reference and
// returns one result per reference, sorted ascending by distance. Equal
// distances keep reference order. Any failed comparison fails the search.
func (e *Engine) Search(ctx context.Context, query *feature.Matrix, refs []Reference) ([]SearchResult, error) {
	results := make([]SearchResult, len(refs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			best, err := e.bestVariant(query, refs[i])
			if err != nil {
				return fmt.Errorf("reference %d (%s): %w", i, refs[i].Name, err)
			}
			best.ReferenceIndex = i
			results[i] = best
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Distance < results[b].Distance
	})
	return results, nil
}

// bestVariant keeps the first variant with the smallest distance.
func (e *Engine) bestVariant(query *feature.Matrix, ref Reference) (SearchResult, error) {
	if len(ref.Variants) == 0 {
		return SearchResult{}, fmt.Errorf("%w: reference has no variants", align.ErrInvalidSearchSpace)
	}
	var best SearchResult
	for v, variant := range ref.Variants {
		a, err := e.aligner.Compare(query, variant)
		if err != nil {
			return SearchResult{}, fmt.Errorf("variant %d: %w", v, err)
		}
		if v == 0 || a.Distance < best.Distance {
			best = SearchResult{Distance: a.Distance, Variant: v, Offset: a.Offset}
		}
	}
	return best, nil
}
