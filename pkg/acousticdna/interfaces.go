package acousticdna

import (
	"context"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
	"github.com/himanishpuri/AcousticAlign/pkg/models"
)

type Service interface {
	AddReference(ctx context.Context, name string, variants []*feature.Matrix) (string, error)
	GetReference(referenceID string) (*models.Reference, error)
	ListReferences() ([]models.Reference, error)
	DeleteReference(referenceID string) error
	Search(ctx context.Context, query *feature.Matrix) ([]models.MatchResult, error)
	Evaluate(ctx context.Context, queries []*feature.Matrix, groundTruthIDs []string) (*models.Evaluation, error)
	Close() error
}

type Storage interface {
	RegisterReference(name string, channels int) (string, bool, error)
	StoreVariants(referenceID string, variants []*feature.Matrix) error
	GetReferenceByID(referenceID string) (*models.Reference, error)
	ListReferences() ([]models.Reference, error)
	GetVariants(referenceID string) ([]*feature.Matrix, error)
	GetAllVariants() (map[string][]*feature.Matrix, error)
	DeleteReferenceByID(referenceID string) error
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
