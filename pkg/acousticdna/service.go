package acousticdna

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/rank"
	"github.com/himanishpuri/AcousticAlign/pkg/logger"
	"github.com/himanishpuri/AcousticAlign/pkg/models"
)

// alignService is the default implementation of the Service interface.
type alignService struct {
	storage Storage
	engine  *rank.Engine
	log     Logger
	config  *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Aligner == nil {
		cfg.Aligner = align.NewBruteForce()
	}
	if cfg.PitchShifts < 0 {
		return nil, fmt.Errorf("pitch shifts must not be negative, got %d", cfg.PitchShifts)
	}

	var stor Storage
	var err error
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	engine := rank.NewEngine(cfg.Aligner,
		rank.WithWorkers(cfg.Workers),
		rank.WithLogger(cfg.Logger),
		rank.WithProgress(cfg.Progress),
	)

	return &alignService{
		storage: stor,
		engine:  engine,
		log:     cfg.Logger,
		config:  cfg,
	}, nil
}

// AddReference stores variants under name. Registering an existing name
// appends the variants to it and returns its id.
func (s *alignService) AddReference(ctx context.Context, name string, variants []*feature.Matrix) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("reference name is required")
	}
	if len(variants) == 0 {
		return "", fmt.Errorf("%w: reference %q needs at least one variant", align.ErrInvalidSearchSpace, name)
	}
	channels := variants[0].Channels()
	for i, v := range variants {
		if v.Channels() != channels {
			return "", fmt.Errorf("%w: variant %d has %d channels, variant 0 has %d",
				align.ErrShapeMismatch, i, v.Channels(), channels)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stored, err := s.expand(variants)
	if err != nil {
		return "", err
	}
	s.log.Infof("Adding reference %q: %d variants (%d channels)", name, len(stored), channels)

	referenceID, created, err := s.storage.RegisterReference(name, channels)
	if err != nil {
		return "", fmt.Errorf("failed to register reference: %w", err)
	}

	if err := s.storage.StoreVariants(referenceID, stored); err != nil {
		if created {
			s.storage.DeleteReferenceByID(referenceID) // Rollback
		}
		return "", fmt.Errorf("failed to store variants: %w", err)
	}

	if created {
		s.log.Infof("Successfully added reference ID=%s", referenceID)
	} else {
		s.log.Infof("Appended %d variants to existing reference ID=%s", len(stored), referenceID)
	}
	return referenceID, nil
}

// expand adds the configured pitch shifts of each variant.
func (s *alignService) expand(variants []*feature.Matrix) ([]*feature.Matrix, error) {
	if s.config.PitchShifts == 0 {
		return variants, nil
	}
	out := make([]*feature.Matrix, 0, len(variants)*(2*s.config.PitchShifts+1))
	for i, v := range variants {
		shifted, err := feature.PitchVariants(v, s.config.PitchShifts)
		if err != nil {
			return nil, fmt.Errorf("variant %d: %w", i, err)
		}
		out = append(out, shifted...)
	}
	return out, nil
}

// Search ranks every stored reference against the query.
func (s *alignService) Search(ctx context.Context, query *feature.Matrix) ([]models.MatchResult, error) {
	refs, err := s.loadReferences()
	if err != nil {
		return nil, err
	}
	s.log.Infof("Searching %dx%d query against %d references", query.Channels(), query.Frames(), len(refs))

	results, err := s.engine.Search(ctx, query, refs)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	matches := make([]models.MatchResult, len(results))
	for i, r := range results {
		ref := refs[r.ReferenceIndex]
		matches[i] = models.MatchResult{
			Rank:        i + 1,
			ReferenceID: ref.ID,
			Name:        ref.Name,
			Distance:    r.Distance,
			Variant:     r.Variant,
			Offset:      r.Offset,
		}
	}
	if len(matches) > 0 {
		s.log.Debugf("Best match %q at distance %.4f", matches[0].Name, matches[0].Distance)
	}
	return matches, nil
}

// Evaluate computes the MRR of the stored collection for labelled queries.
// Ground-truth ids that are not stored count as not found.
func (s *alignService) Evaluate(ctx context.Context, queries []*feature.Matrix, groundTruthIDs []string) (*models.Evaluation, error) {
	refs, err := s.loadReferences()
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(refs))
	for i, r := range refs {
		index[r.ID] = i
	}
	truth := make([]int, len(groundTruthIDs))
	for i, id := range groundTruthIDs {
		pos, ok := index[id]
		if !ok {
			s.log.Warnf("Query %d: ground truth %s is not a stored reference", i, id)
			pos = -1
		}
		truth[i] = pos
	}

	ev, err := s.engine.EvaluateMRR(ctx, queries, refs, truth)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	return &models.Evaluation{
		MRR:      ev.MRR,
		Queries:  ev.Queries,
		Found:    ev.Found,
		NotFound: ev.NotFound,
		Ranks:    ev.Ranks,
	}, nil
}

// loadReferences reads the whole collection, skipping references that have
// no stored variants.
func (s *alignService) loadReferences() ([]rank.Reference, error) {
	infos, err := s.storage.ListReferences()
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	variants, err := s.storage.GetAllVariants()
	if err != nil {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}

	refs := make([]rank.Reference, 0, len(infos))
	for _, info := range infos {
		v := variants[info.ID]
		if len(v) == 0 {
			s.log.Warnf("Skipping reference %s (%q): no variants stored", info.ID, info.Name)
			continue
		}
		refs = append(refs, rank.Reference{ID: info.ID, Name: info.Name, Variants: v})
	}
	return refs, nil
}

// GetReference retrieves a reference's metadata by its database ID.
func (s *alignService) GetReference(referenceID string) (*models.Reference, error) {
	return s.storage.GetReferenceByID(referenceID)
}

// ListReferences returns all references in the database.
func (s *alignService) ListReferences() ([]models.Reference, error) {
	return s.storage.ListReferences()
}

// DeleteReference removes a reference and all its variants from the database.
func (s *alignService) DeleteReference(referenceID string) error {
	return s.storage.DeleteReferenceByID(referenceID)
}

// Close releases all resources held by the service.
func (s *alignService) Close() error {
	return s.storage.Close()
}
