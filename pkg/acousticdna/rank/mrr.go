package rank

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
)

// Evaluation summarises an MRR run.
type Evaluation struct {
	MRR      float64
	Queries  int
	Found    int
	NotFound int
	Ranks    []int // 1-based rank per query, 0 when the ground truth was absent
}

// RankOf returns the 1-based position of referenceIndex in results.
func RankOf(results []SearchResult, referenceIndex int) (int, error) {
	for pos, r := range results {
		if r.ReferenceIndex == referenceIndex {
			return pos + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: reference %d", align.ErrRankNotFound, referenceIndex)
}

// EvaluateMRR searches every query and averages the reciprocal rank of its
// ground-truth reference. A query whose ground truth does not appear in the
// results contributes zero and is counted in NotFound.
func (e *Engine) EvaluateMRR(ctx context.Context, queries []*feature.Matrix, refs []Reference, groundTruth []int) (Evaluation, error) {
	if len(queries) != len(groundTruth) {
		return Evaluation{}, fmt.Errorf("%w: %d queries but %d ground-truth labels",
			align.ErrShapeMismatch, len(queries), len(groundTruth))
	}
	if len(queries) == 0 {
		return Evaluation{}, fmt.Errorf("%w: no queries to evaluate", align.ErrInvalidSearchSpace)
	}

	ev := Evaluation{Queries: len(queries), Ranks: make([]int, len(queries))}
	reciprocal := make([]float64, len(queries))
	for i, q := range queries {
		results, err := e.Search(ctx, q, refs)
		if err != nil {
			return Evaluation{}, fmt.Errorf("query %d: %w", i, err)
		}

		rank, err := RankOf(results, groundTruth[i])
		if err != nil {
			e.log.Warnf("query %d: %v", i, err)
			ev.NotFound++
		} else {
			ev.Found++
			ev.Ranks[i] = rank
			reciprocal[i] = 1 / float64(rank)
			e.log.Debugf("query %d: ground truth %d ranked %d", i, groundTruth[i], rank)
		}

		if e.progress != nil {
			e.progress(i+1, len(queries))
		}
	}

	ev.MRR = stat.Mean(reciprocal, nil)
	e.log.Infof("MRR %.4f over %d queries (%d not found)", ev.MRR, ev.Queries, ev.NotFound)
	return ev, nil
}
