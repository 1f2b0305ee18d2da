package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
	"github.com/himanishpuri/AcousticAlign/pkg/utils"
)

const DefaultDBFile = "acousticalign.sqlite3"
const errDBClientNil = "db client is nil"

// ErrNotFound is returned when a reference id does not exist.
var ErrNotFound = errors.New("reference not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB

	appendMu sync.Mutex // serialises variant appends from this client
}

// appendAttempts bounds retries when another writer takes the same positions.
const appendAttempts = 3

type Reference struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Name      string `gorm:"uniqueIndex:idx_reference_name" json:"name"`
	Channels  int    `json:"channels"`
	CreatedAt time.Time
}

type Variant struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ReferenceID string `gorm:"type:varchar(36);uniqueIndex:idx_variant_position,priority:1" json:"reference_id"`
	Position    int    `gorm:"uniqueIndex:idx_variant_position,priority:2" json:"position"`
	Channels    int    `json:"channels"`
	Frames      int    `json:"frames"`
	Data        []byte `json:"-"`
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("ACOUSTIC_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if err := utils.EnsureParentDir(dbPath); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Reference{}, &Variant{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RegisterReference returns the id of the reference called name, creating it
// when it does not exist yet. created reports whether a new row was written.
func (c *DBClient) RegisterReference(name string, channels int) (id string, created bool, err error) {
	if c == nil || c.DB == nil {
		return "", false, errors.New(errDBClientNil)
	}

	var ref Reference

	err = c.DB.Where("name = ?", name).First(&ref).Error
	if err == nil {
		if ref.Channels != channels {
			return "", false, fmt.Errorf("%w: reference %q has %d channels, got %d",
				align.ErrShapeMismatch, name, ref.Channels, channels)
		}
		return ref.ID, false, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, fmt.Errorf("querying existing reference: %w", err)
	}

	ref = Reference{ID: utils.GenerateUUID(), Name: name, Channels: channels}
	err = c.DB.Create(&ref).Error
	if err != nil {
		if isUniqueViolation(err) {
			if fetchErr := c.DB.Where("name = ?", name).First(&ref).Error; fetchErr != nil {
				return "", false, fmt.Errorf("fetching reference after constraint violation: %w", fetchErr)
			}
			return ref.ID, false, nil
		}
		return "", false, fmt.Errorf("creating reference: %w", err)
	}

	return ref.ID, true, nil
}

// StoreVariants appends variants to a reference, numbering them after the
// highest position already stored. A collision with a concurrent writer on
// the same positions is retried.
func (c *DBClient) StoreVariants(referenceID string, variants []*feature.Matrix) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}

	c.appendMu.Lock()
	defer c.appendMu.Unlock()

	var err error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		err = c.appendVariants(referenceID, variants)
		if err == nil || !isUniqueViolation(err) {
			return err
		}
	}
	return err
}

func (c *DBClient) appendVariants(referenceID string, variants []*feature.Matrix) error {
	return c.DB.Transaction(func(tx *gorm.DB) error {
		var ref Reference
		if err := tx.Where("id = ?", referenceID).First(&ref).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, referenceID)
			}
			return fmt.Errorf("querying reference: %w", err)
		}

		var last int64
		if err := tx.Model(&Variant{}).
			Where("reference_id = ?", referenceID).
			Select("COALESCE(MAX(position), -1)").
			Scan(&last).Error; err != nil {
			return fmt.Errorf("reading last variant position: %w", err)
		}

		rows := make([]Variant, 0, len(variants))
		for i, v := range variants {
			if v.Channels() != ref.Channels {
				return fmt.Errorf("%w: variant %d has %d channels, reference has %d",
					align.ErrShapeMismatch, i, v.Channels(), ref.Channels)
			}
			data, err := v.MarshalBinary()
			if err != nil {
				return fmt.Errorf("encoding variant %d: %w", i, err)
			}
			rows = append(rows, Variant{
				ReferenceID: referenceID,
				Position:    int(last) + 1 + i,
				Channels:    v.Channels(),
				Frames:      v.Frames(),
				Data:        data,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 50).Error; err != nil {
			return fmt.Errorf("batch insert variants: %w", err)
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (c *DBClient) GetReferenceByID(referenceID string) (*Reference, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var ref Reference
	if err := c.DB.Where("id = ?", referenceID).First(&ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, referenceID)
		}
		return nil, fmt.Errorf("querying reference: %w", err)
	}
	return &ref, nil
}

// ListReferences returns every reference, oldest first.
func (c *DBClient) ListReferences() ([]Reference, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var refs []Reference
	if err := c.DB.Order("created_at, name").Find(&refs).Error; err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}
	return refs, nil
}

func (c *DBClient) GetVariantCount(referenceID string) (int, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	var count int64
	if err := c.DB.Model(&Variant{}).Where("reference_id = ?", referenceID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting variants: %w", err)
	}
	return int(count), nil
}

// GetVariants decodes a reference's variants in position order.
func (c *DBClient) GetVariants(referenceID string) ([]*feature.Matrix, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []Variant
	if err := c.DB.Where("reference_id = ?", referenceID).Order("position").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying variants: %w", err)
	}
	return decodeVariants(rows)
}

// GetAllVariants loads every stored variant keyed by reference id.
func (c *DBClient) GetAllVariants() (map[string][]*feature.Matrix, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []Variant
	if err := c.DB.Order("reference_id, position").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying variants: %w", err)
	}

	grouped := make(map[string][]Variant)
	for _, r := range rows {
		grouped[r.ReferenceID] = append(grouped[r.ReferenceID], r)
	}
	out := make(map[string][]*feature.Matrix, len(grouped))
	for id, group := range grouped {
		decoded, err := decodeVariants(group)
		if err != nil {
			return nil, fmt.Errorf("reference %s: %w", id, err)
		}
		out[id] = decoded
	}
	return out, nil
}

func (c *DBClient) DeleteReferenceByID(referenceID string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("reference_id = ?", referenceID).Delete(&Variant{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", referenceID).Delete(&Reference{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, referenceID)
		}
		return nil
	})
}

func decodeVariants(rows []Variant) ([]*feature.Matrix, error) {
	out := make([]*feature.Matrix, len(rows))
	for i, r := range rows {
		m := new(feature.Matrix)
		if err := m.UnmarshalBinary(r.Data); err != nil {
			return nil, fmt.Errorf("variant %d: %w", r.Position, err)
		}
		if m.Channels() != r.Channels || m.Frames() != r.Frames {
			return nil, fmt.Errorf("%w: variant %d decoded as %dx%d, stored as %dx%d",
				align.ErrShapeMismatch, r.Position, m.Channels(), m.Frames(), r.Channels, r.Frames)
		}
		out[i] = m
	}
	return out, nil
}

