package models

// Evaluation reports ranking quality over a labelled query set.
type Evaluation struct {
	MRR      float64 // Mean reciprocal rank, missing ground truth counts as 0
	Queries  int
	Found    int
	NotFound int
	Ranks    []int // 1-based rank per query, 0 when not found
}
