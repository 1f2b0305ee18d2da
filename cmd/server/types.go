package main

import (
	"fmt"
	"time"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
)

// Request limits
const (
	// MaxRequestBytes bounds any JSON request body.
	MaxRequestBytes = 32 << 20

	// MaxVariantsPerRequest bounds the variants accepted by POST /api/references
	MaxVariantsPerRequest = 64

	// MaxEvaluateQueries bounds the labelled queries accepted by POST /api/evaluate
	MaxEvaluateQueries = 1000
)

// AddReferenceRequest is the request body for POST /api/references
type AddReferenceRequest struct {
	Name     string            `json:"name"`
	Variants []*feature.Matrix `json:"variants"`
}

// Validate checks if the request is valid
func (r *AddReferenceRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.Variants) == 0 {
		return fmt.Errorf("at least one variant is required")
	}
	if len(r.Variants) > MaxVariantsPerRequest {
		return fmt.Errorf("too many variants: %d (maximum: %d)", len(r.Variants), MaxVariantsPerRequest)
	}
	for i, v := range r.Variants {
		if v == nil {
			return fmt.Errorf("variant %d is empty", i)
		}
	}
	return nil
}

// AddReferenceResponse is the response for successful reference addition
type AddReferenceResponse struct {
	Message  string `json:"message"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Variants int    `json:"variants"`
}

// ReferenceDTO represents a reference in API responses
type ReferenceDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Channels  int       `json:"channels"`
	Variants  int       `json:"variants"`
	CreatedAt time.Time `json:"created_at"`
}

// ListReferencesResponse is the response for GET /api/references
type ListReferencesResponse struct {
	References []ReferenceDTO `json:"references"`
	Count      int            `json:"count"`
}

// DeleteReferenceResponse is the response for DELETE /api/references/{id}
type DeleteReferenceResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// SearchRequest is the request body for POST /api/search
type SearchRequest struct {
	Query *feature.Matrix `json:"query"`
	Top   int             `json:"top,omitempty"` // 0 returns every reference
}

// SearchResponse is the response for POST /api/search
type SearchResponse struct {
	Matches []MatchResultDTO `json:"matches"`
	Count   int              `json:"count"`
}

// MatchResultDTO represents a single ranked reference
type MatchResultDTO struct {
	Rank        int     `json:"rank"`
	ReferenceID string  `json:"reference_id"`
	Name        string  `json:"name"`
	Distance    float64 `json:"distance"`
	Variant     int     `json:"variant"`
	Offset      int     `json:"offset"`
}

// EvaluateQuery is one labelled query; Reference is a reference id or name.
type EvaluateQuery struct {
	Reference string          `json:"reference"`
	Features  *feature.Matrix `json:"features"`
}

// EvaluateRequest is the request body for POST /api/evaluate
type EvaluateRequest struct {
	Queries []EvaluateQuery `json:"queries"`
}

// Validate checks if the request is valid
func (r *EvaluateRequest) Validate() error {
	if len(r.Queries) == 0 {
		return fmt.Errorf("queries cannot be empty")
	}
	if len(r.Queries) > MaxEvaluateQueries {
		return fmt.Errorf("too many queries: %d (maximum: %d)", len(r.Queries), MaxEvaluateQueries)
	}
	for i, q := range r.Queries {
		if q.Features == nil {
			return fmt.Errorf("query %d has no features", i)
		}
		if q.Reference == "" {
			return fmt.Errorf("query %d has no reference", i)
		}
	}
	return nil
}

// EvaluateResponse is the response for POST /api/evaluate
type EvaluateResponse struct {
	MRR      float64 `json:"mrr"`
	Queries  int     `json:"queries"`
	Found    int     `json:"found"`
	NotFound int     `json:"not_found"`
	Ranks    []int   `json:"ranks"`
}

// MetricsResponse provides server health and database metrics
type MetricsResponse struct {
	Status         string `json:"status"`
	DatabasePath   string `json:"database_path"`
	ReferenceCount int    `json:"reference_count"`
	VariantCount   int    `json:"variant_count"`
	Aligner        string `json:"aligner"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
