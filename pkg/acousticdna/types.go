package acousticdna

import (
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/storage"
	"github.com/himanishpuri/AcousticAlign/pkg/models"
)

// Re-exported so callers of the service need only this package.
type (
	Reference   = models.Reference
	MatchResult = models.MatchResult
	Evaluation  = models.Evaluation
)

// ErrNotFound is returned for unknown reference ids.
var ErrNotFound = storage.ErrNotFound
