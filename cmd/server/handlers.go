package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
	"github.com/himanishpuri/AcousticAlign/pkg/logger"
	"github.com/himanishpuri/AcousticAlign/pkg/utils"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service acousticdna.Service
	config  *ServerConfig
	log     acousticdna.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	Aligner        string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewServer creates a new server instance
func NewServer(service acousticdna.Service, config *ServerConfig) *Server {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 2 * time.Minute
	}
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger().WithPrefix("[http]"),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, acousticdna.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, align.ErrShapeMismatch), errors.Is(err, align.ErrInvalidSearchSpace):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a size-limited JSON body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON body: %v", err))
		return false
	}
	return true
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "AcousticAlign API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":          "GET /health",
			"metrics":         "GET /api/health/metrics",
			"references":      "GET /api/references",
			"addReference":    "POST /api/references",
			"getReference":    "GET /api/references/{id}",
			"deleteReference": "DELETE /api/references/{id}",
			"search":          "POST /api/search",
			"evaluate":        "POST /api/evaluate",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	refs, err := s.service.ListReferences()
	if err != nil {
		s.log.Errorf("Failed to get reference count: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	variants := 0
	for _, ref := range refs {
		variants += ref.Variants
	}
	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:         "healthy",
		DatabasePath:   s.config.DBPath,
		ReferenceCount: len(refs),
		VariantCount:   variants,
		Aligner:        s.config.Aligner,
	})
}

// handleReferences dispatches /api/references
func (s *Server) handleReferences(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListReferences(w, r)
	case http.MethodPost:
		s.handleAddReference(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Only GET and POST are allowed")
	}
}

// handleReference dispatches /api/references/{id}
func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/references/")
	if id == "" || strings.Contains(id, "/") || !utils.IsValidUUID(id) {
		s.respondError(w, http.StatusBadRequest, "Invalid reference ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetReference(w, r, id)
	case http.MethodDelete:
		s.handleDeleteReference(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Only GET and DELETE are allowed")
	}
}

// handleListReferences handles GET /api/references
func (s *Server) handleListReferences(w http.ResponseWriter, r *http.Request) {
	refs, err := s.service.ListReferences()
	if err != nil {
		s.log.Errorf("Failed to list references: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve references")
		return
	}

	dtos := make([]ReferenceDTO, len(refs))
	for i, ref := range refs {
		dtos[i] = toReferenceDTO(ref)
	}

	s.respondJSON(w, http.StatusOK, ListReferencesResponse{
		References: dtos,
		Count:      len(dtos),
	})
}

// handleGetReference handles GET /api/references/{id}
func (s *Server) handleGetReference(w http.ResponseWriter, r *http.Request, id string) {
	ref, err := s.service.GetReference(id)
	if err != nil {
		s.respondError(w, statusFor(err), fmt.Sprintf("Reference %s not available: %v", id, err))
		return
	}
	s.respondJSON(w, http.StatusOK, toReferenceDTO(*ref))
}

// handleDeleteReference handles DELETE /api/references/{id}
func (s *Server) handleDeleteReference(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.service.DeleteReference(id); err != nil {
		s.log.Warnf("Failed to delete reference %s: %v", id, err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to delete reference: %v", err))
		return
	}
	s.log.Infof("Deleted reference %s", id)
	s.respondJSON(w, http.StatusOK, DeleteReferenceResponse{
		Message: "Reference deleted successfully",
		ID:      id,
	})
}

// handleAddReference handles POST /api/references
func (s *Server) handleAddReference(w http.ResponseWriter, r *http.Request) {
	var req AddReferenceRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	id, err := s.service.AddReference(ctx, req.Name, req.Variants)
	if err != nil {
		s.log.Errorf("AddReference failed: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to add reference: %v", err))
		return
	}

	ref, err := s.service.GetReference(id)
	if err != nil {
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to read back reference: %v", err))
		return
	}
	s.respondJSON(w, http.StatusCreated, AddReferenceResponse{
		Message:  "Reference added successfully",
		ID:       ref.ID,
		Name:     ref.Name,
		Variants: ref.Variants,
	})
}

// handleSearch handles POST /api/search
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Only POST is allowed")
		return
	}

	var req SearchRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Query == nil {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	results, err := s.service.Search(ctx, req.Query)
	if err != nil {
		s.log.Errorf("Search failed: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Search failed: %v", err))
		return
	}

	if req.Top > 0 && len(results) > req.Top {
		results = results[:req.Top]
	}
	matches := make([]MatchResultDTO, len(results))
	for i, m := range results {
		matches[i] = MatchResultDTO{
			Rank:        m.Rank,
			ReferenceID: m.ReferenceID,
			Name:        m.Name,
			Distance:    m.Distance,
			Variant:     m.Variant,
			Offset:      m.Offset,
		}
	}
	s.respondJSON(w, http.StatusOK, SearchResponse{Matches: matches, Count: len(matches)})
}

// handleEvaluate handles POST /api/evaluate
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Only POST is allowed")
		return
	}

	var req EvaluateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	refs, err := s.service.ListReferences()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve references")
		return
	}
	byName := make(map[string]string, len(refs))
	for _, ref := range refs {
		byName[ref.Name] = ref.ID
	}

	queries := make([]*feature.Matrix, len(req.Queries))
	truth := make([]string, len(req.Queries))
	for i, q := range req.Queries {
		queries[i] = q.Features
		truth[i] = q.Reference
		if id, ok := byName[q.Reference]; ok {
			truth[i] = id
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	ev, err := s.service.Evaluate(ctx, queries, truth)
	if err != nil {
		s.log.Errorf("Evaluate failed: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Evaluation failed: %v", err))
		return
	}
	s.respondJSON(w, http.StatusOK, EvaluateResponse{
		MRR:      ev.MRR,
		Queries:  ev.Queries,
		Found:    ev.Found,
		NotFound: ev.NotFound,
		Ranks:    ev.Ranks,
	})
}

func toReferenceDTO(ref acousticdna.Reference) ReferenceDTO {
	return ReferenceDTO{
		ID:        ref.ID,
		Name:      ref.Name,
		Channels:  ref.Channels,
		Variants:  ref.Variants,
		CreatedAt: ref.CreatedAt,
	}
}
