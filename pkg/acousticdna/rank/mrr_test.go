package rank

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
)

func TestEvaluateMRRAllFirst(t *testing.T) {
	refs := rowReferences(4)
	queries := make([]*feature.Matrix, len(refs))
	truth := make([]int, len(refs))
	for i, ref := range refs {
		queries[i] = ref.Variants[0].Clone()
		truth[i] = i
	}

	var calls []int
	engine := NewEngine(align.NewBruteForce(), WithProgress(func(done, total int) {
		if total != len(queries) {
			t.Errorf("progress total %d, want %d", total, len(queries))
		}
		calls = append(calls, done)
	}))

	ev, err := engine.EvaluateMRR(context.Background(), queries, refs, truth)
	if err != nil {
		t.Fatalf("EvaluateMRR failed: %v", err)
	}
	if ev.MRR != 1.0 {
		t.Errorf("Expected MRR 1.0, got %f", ev.MRR)
	}
	if ev.Found != 4 || ev.NotFound != 0 || ev.Queries != 4 {
		t.Errorf("Unexpected counts: %+v", ev)
	}
	for i, r := range ev.Ranks {
		if r != 1 {
			t.Errorf("query %d ranked %d", i, r)
		}
	}
	if len(calls) != 4 || calls[3] != 4 {
		t.Errorf("Expected progress 1..4, got %v", calls)
	}
}

func TestEvaluateMRRSecondPlace(t *testing.T) {
	refs := rowReferences(3)
	q := refs[0].Variants[0]

	// References 1 and 2 tie behind reference 0, so reference 1 ranks second.
	ev, err := NewEngine(align.NewBruteForce()).EvaluateMRR(context.Background(),
		[]*feature.Matrix{q, q}, refs, []int{0, 1})
	if err != nil {
		t.Fatalf("EvaluateMRR failed: %v", err)
	}
	if math.Abs(ev.MRR-0.75) > 1e-12 {
		t.Errorf("Expected MRR 0.75, got %f", ev.MRR)
	}
	if ev.Ranks[0] != 1 || ev.Ranks[1] != 2 {
		t.Errorf("Expected ranks [1 2], got %v", ev.Ranks)
	}
}

func TestEvaluateMRRGroundTruthMissing(t *testing.T) {
	refs := rowReferences(2)
	log := &recordingLogger{}
	engine := NewEngine(align.NewBruteForce(), WithLogger(log))

	ev, err := engine.EvaluateMRR(context.Background(),
		[]*feature.Matrix{refs[0].Variants[0], refs[1].Variants[0]}, refs, []int{0, 7})
	if err != nil {
		t.Fatalf("EvaluateMRR failed: %v", err)
	}
	if ev.NotFound != 1 || ev.Found != 1 {
		t.Errorf("Expected 1 found and 1 not found, got %+v", ev)
	}
	if ev.Ranks[1] != 0 {
		t.Errorf("Expected rank 0 for missing ground truth, got %d", ev.Ranks[1])
	}
	if ev.MRR != 0.5 {
		t.Errorf("Expected MRR 0.5, got %f", ev.MRR)
	}
	if len(log.warns) != 1 {
		t.Errorf("Expected one warning, got %v", log.warns)
	}
}

func TestEvaluateMRRErrors(t *testing.T) {
	refs := rowReferences(2)
	engine := NewEngine(align.NewBruteForce())

	_, err := engine.EvaluateMRR(context.Background(), []*feature.Matrix{refs[0].Variants[0]}, refs, []int{0, 1})
	if !errors.Is(err, align.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}

	_, err = engine.EvaluateMRR(context.Background(), nil, refs, nil)
	if !errors.Is(err, align.ErrInvalidSearchSpace) {
		t.Errorf("Expected ErrInvalidSearchSpace, got %v", err)
	}
}

func TestRankOf(t *testing.T) {
	results := []SearchResult{
		{ReferenceIndex: 2},
		{ReferenceIndex: 0},
		{ReferenceIndex: 1},
	}
	rank, err := RankOf(results, 0)
	if err != nil || rank != 2 {
		t.Errorf("RankOf(0) = %d, %v; want 2", rank, err)
	}
	if _, err := RankOf(results, 5); !errors.Is(err, align.ErrRankNotFound) {
		t.Errorf("Expected ErrRankNotFound, got %v", err)
	}
}
