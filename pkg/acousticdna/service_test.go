package acousticdna

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/conv"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
	"github.com/himanishpuri/AcousticAlign/pkg/logger"
)

// setupTestService creates a test service with a temporary database
func setupTestService(t *testing.T, opts ...Option) Service {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_service.sqlite3")
	quiet := logger.New(logger.Config{Level: logger.DEBUG, Output: io.Discard})

	all := append([]Option{WithDBPath(dbPath), WithLogger(quiet), WithWorkers(2)}, opts...)
	svc, err := NewService(all...)
	if err != nil {
		t.Fatalf("Failed to create test service: %v", err)
	}
	t.Cleanup(func() {
		svc.Close()
	})
	return svc
}

func rows(t *testing.T, r [][]float64) *feature.Matrix {
	t.Helper()
	m, err := feature.FromRows(r)
	if err != nil {
		t.Fatalf("FromRows failed: %v", err)
	}
	return m
}

func chromaLike(t *testing.T) *feature.Matrix {
	return rows(t, [][]float64{
		{1, 1, 1, 1},
		{1, 1, 0, 0},
		{0, 0, 1, 1},
		{0, 0, 0, 0},
	})
}

func opposite(m *feature.Matrix) *feature.Matrix {
	r := m.Rows()
	for _, row := range r {
		for i := range row {
			row[i] = 1 - row[i]
		}
	}
	out, _ := feature.FromRows(r)
	return out
}

func TestAddGetListDeleteReference(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	id, err := svc.AddReference(ctx, "Blue in Green", []*feature.Matrix{chromaLike(t), chromaLike(t)})
	if err != nil {
		t.Fatalf("AddReference failed: %v", err)
	}

	ref, err := svc.GetReference(id)
	if err != nil {
		t.Fatalf("GetReference failed: %v", err)
	}
	if ref.Name != "Blue in Green" || ref.Channels != 4 || ref.Variants != 2 {
		t.Errorf("Unexpected reference: %+v", ref)
	}

	again, err := svc.AddReference(ctx, "Blue in Green", []*feature.Matrix{chromaLike(t)})
	if err != nil {
		t.Fatalf("AddReference (append) failed: %v", err)
	}
	if again != id {
		t.Errorf("Expected same id on re-add, got %s and %s", id, again)
	}

	list, err := svc.ListReferences()
	if err != nil {
		t.Fatalf("ListReferences failed: %v", err)
	}
	if len(list) != 1 || list[0].Variants != 3 {
		t.Errorf("Expected one reference with 3 variants, got %+v", list)
	}

	if err := svc.DeleteReference(id); err != nil {
		t.Fatalf("DeleteReference failed: %v", err)
	}
	if _, err := svc.GetReference(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestAddReferenceValidation(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	narrow := rows(t, [][]float64{{1, 0, 1, 0}})

	if _, err := svc.AddReference(ctx, "  ", []*feature.Matrix{narrow}); err == nil {
		t.Error("Expected error for empty name")
	}
	if _, err := svc.AddReference(ctx, "none", nil); !errors.Is(err, align.ErrInvalidSearchSpace) {
		t.Errorf("Expected ErrInvalidSearchSpace for no variants, got %v", err)
	}
	if _, err := svc.AddReference(ctx, "mixed", []*feature.Matrix{chromaLike(t), narrow}); !errors.Is(err, align.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for mixed channels, got %v", err)
	}

	list, _ := svc.ListReferences()
	if len(list) != 0 {
		t.Errorf("Expected nothing stored after failed adds, got %d", len(list))
	}
}

func TestSearchRanksIdenticalFirst(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	query := chromaLike(t)

	oppID, _ := svc.AddReference(ctx, "opposite", []*feature.Matrix{opposite(query)})
	idID, _ := svc.AddReference(ctx, "identical", []*feature.Matrix{query})

	results, err := svc.Search(ctx, query)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].ReferenceID != idID || results[0].Distance != 0 || results[0].Rank != 1 {
		t.Errorf("Expected identical reference ranked first, got %+v", results[0])
	}
	if results[1].ReferenceID != oppID || results[1].Distance != 1 || results[1].Rank != 2 {
		t.Errorf("Expected opposite reference ranked second, got %+v", results[1])
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	svc := setupTestService(t)

	results, err := svc.Search(context.Background(), chromaLike(t))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
}

func TestSearchMatchesPitchShiftedQuery(t *testing.T) {
	svc := setupTestService(t, WithPitchShifts(1))
	ctx := context.Background()
	original := chromaLike(t)

	id, err := svc.AddReference(ctx, "shifted", []*feature.Matrix{original})
	if err != nil {
		t.Fatalf("AddReference failed: %v", err)
	}
	ref, _ := svc.GetReference(id)
	if ref.Variants != 3 {
		t.Errorf("Expected 3 stored variants, got %d", ref.Variants)
	}

	results, err := svc.Search(ctx, feature.Shift(original, 1))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results[0].Distance != 0 || results[0].Variant != 2 {
		t.Errorf("Expected exact match on variant 2, got %+v", results[0])
	}
}

func TestEvaluate(t *testing.T) {
	var progress []int
	svc := setupTestService(t, WithProgress(func(done, total int) {
		progress = append(progress, done)
	}))
	ctx := context.Background()
	a := chromaLike(t)
	b := opposite(a)

	idA, _ := svc.AddReference(ctx, "a", []*feature.Matrix{a})
	idB, _ := svc.AddReference(ctx, "b", []*feature.Matrix{b})

	ev, err := svc.Evaluate(ctx, []*feature.Matrix{a, b, a}, []string{idA, idB, "unknown-id"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if ev.Queries != 3 || ev.Found != 2 || ev.NotFound != 1 {
		t.Errorf("Unexpected counts: %+v", ev)
	}
	want := 2.0 / 3.0
	if ev.MRR < want-1e-12 || ev.MRR > want+1e-12 {
		t.Errorf("Expected MRR %f, got %f", want, ev.MRR)
	}
	if len(progress) != 3 {
		t.Errorf("Expected 3 progress callbacks, got %d", len(progress))
	}

	if _, err := svc.Evaluate(ctx, []*feature.Matrix{a}, nil); !errors.Is(err, align.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestSearchWithConvolutionMatcher(t *testing.T) {
	svc := setupTestService(t, WithAligner(conv.NewMatcher(conv.WithBackend(conv.BackendFFT))))
	ctx := context.Background()

	pattern := rows(t, [][]float64{
		{1, 1},
		{-1, 1},
		{1, -1},
		{-1, -1},
	})
	long := make([][]float64, 4)
	for ch := range long {
		long[ch] = make([]float64, 9)
		copy(long[ch][4:], pattern.Row(ch))
	}
	silent, _ := feature.Fill(4, 9, 0)

	svc.AddReference(ctx, "silent", []*feature.Matrix{silent})
	id, _ := svc.AddReference(ctx, "contains", []*feature.Matrix{rows(t, long)})

	results, err := svc.Search(ctx, pattern)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results[0].ReferenceID != id || results[0].Offset != 4 || results[0].Distance != 0 {
		t.Errorf("Expected containing reference first at offset 4, got %+v", results[0])
	}
}

func TestNewServiceRejectsNegativePitchShifts(t *testing.T) {
	_, err := NewService(WithDBPath(filepath.Join(t.TempDir(), "x.sqlite3")), WithPitchShifts(-1))
	if err == nil {
		t.Error("Expected error for negative pitch shifts")
	}
}
