package acousticdna

import (
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/storage"
	"github.com/himanishpuri/AcousticAlign/pkg/models"
)

// storageAdapter adapts the storage.DBClient to implement the Storage interface.
type storageAdapter struct {
	db *storage.DBClient
}

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) RegisterReference(name string, channels int) (string, bool, error) {
	return s.db.RegisterReference(name, channels)
}

func (s *storageAdapter) StoreVariants(referenceID string, variants []*feature.Matrix) error {
	return s.db.StoreVariants(referenceID, variants)
}

func (s *storageAdapter) GetReferenceByID(referenceID string) (*models.Reference, error) {
	ref, err := s.db.GetReferenceByID(referenceID)
	if err != nil {
		return nil, err
	}
	count, err := s.db.GetVariantCount(referenceID)
	if err != nil {
		return nil, err
	}
	out := toModel(*ref, count)
	return &out, nil
}

func (s *storageAdapter) ListReferences() ([]models.Reference, error) {
	refs, err := s.db.ListReferences()
	if err != nil {
		return nil, err
	}

	var counts []struct {
		ReferenceID string
		N           int
	}
	if err := s.db.DB.Model(&storage.Variant{}).
		Select("reference_id, count(*) as n").
		Group("reference_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]int, len(counts))
	for _, c := range counts {
		byID[c.ReferenceID] = c.N
	}

	out := make([]models.Reference, len(refs))
	for i, r := range refs {
		out[i] = toModel(r, byID[r.ID])
	}
	return out, nil
}

func (s *storageAdapter) GetVariants(referenceID string) ([]*feature.Matrix, error) {
	return s.db.GetVariants(referenceID)
}

func (s *storageAdapter) GetAllVariants() (map[string][]*feature.Matrix, error) {
	return s.db.GetAllVariants()
}

func (s *storageAdapter) DeleteReferenceByID(referenceID string) error {
	return s.db.DeleteReferenceByID(referenceID)
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}

func toModel(r storage.Reference, variants int) models.Reference {
	return models.Reference{
		ID:        r.ID,
		Name:      r.Name,
		Channels:  r.Channels,
		Variants:  variants,
		CreatedAt: r.CreatedAt,
	}
}
