package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
)

// Helper function to create a temporary test database
func setupTestDB(t *testing.T) (*DBClient, string) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_align.sqlite3")
	t.Setenv("ACOUSTIC_DB_PATH", dbPath)

	client, err := NewDBClient()
	if err != nil {
		t.Fatalf("Failed to create test DB client: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
	})

	return client, dbPath
}

func testVariant(t *testing.T, channels, frames int, v float64) *feature.Matrix {
	t.Helper()
	m, err := feature.Fill(channels, frames, v)
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	return m
}

func TestNewDBClient(t *testing.T) {
	client, dbPath := setupTestDB(t)

	if client.DB == nil {
		t.Fatal("Expected non-nil GORM DB handle")
	}
	if client.db == nil {
		t.Fatal("Expected non-nil sql.DB handle")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at %s", dbPath)
	}
}

func TestNewDBClientWithCustomPath(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "subdir", "custom.db")

	client, err := NewDBClientWithPath(customPath)
	if err != nil {
		t.Fatalf("Failed to create DB with custom path: %v", err)
	}
	defer client.Close()

	if _, err := os.Stat(customPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at custom path %s", customPath)
	}
}

func TestRegisterReference(t *testing.T) {
	client, _ := setupTestDB(t)

	id, created, err := client.RegisterReference("Take Five", 12)
	if err != nil {
		t.Fatalf("Failed to register reference: %v", err)
	}
	if !created {
		t.Error("Expected a new reference to be created")
	}
	if id == "" {
		t.Error("Expected non-empty reference ID")
	}

	ref, err := client.GetReferenceByID(id)
	if err != nil {
		t.Fatalf("Failed to retrieve registered reference: %v", err)
	}
	if ref.Name != "Take Five" {
		t.Errorf("Expected name 'Take Five', got '%s'", ref.Name)
	}
	if ref.Channels != 12 {
		t.Errorf("Expected 12 channels, got %d", ref.Channels)
	}
}

func TestRegisterReferenceIdempotent(t *testing.T) {
	client, _ := setupTestDB(t)

	id1, _, err := client.RegisterReference("Duplicate", 12)
	if err != nil {
		t.Fatalf("Failed to register reference first time: %v", err)
	}
	id2, created, err := client.RegisterReference("Duplicate", 12)
	if err != nil {
		t.Fatalf("Failed to register reference second time: %v", err)
	}

	if id1 != id2 {
		t.Errorf("Expected same ID for duplicate registration, got %s and %s", id1, id2)
	}
	if created {
		t.Error("Expected second registration to reuse the existing row")
	}

	var count int64
	client.DB.Model(&Reference{}).Where("name = ?", "Duplicate").Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 reference in database, found %d", count)
	}

	if _, _, err := client.RegisterReference("Duplicate", 24); !errors.Is(err, align.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for different channel count, got %v", err)
	}
}

func TestStoreAndGetVariants(t *testing.T) {
	client, _ := setupTestDB(t)

	id, _, _ := client.RegisterReference("Variants", 3)
	first := []*feature.Matrix{testVariant(t, 3, 5, 0), testVariant(t, 3, 6, 1)}
	if err := client.StoreVariants(id, first); err != nil {
		t.Fatalf("Failed to store variants: %v", err)
	}
	if err := client.StoreVariants(id, []*feature.Matrix{testVariant(t, 3, 7, 2)}); err != nil {
		t.Fatalf("Failed to append variant: %v", err)
	}

	got, err := client.GetVariants(id)
	if err != nil {
		t.Fatalf("Failed to get variants: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 variants, got %d", len(got))
	}
	for i, want := range []float64{0, 1, 2} {
		if got[i].Frames() != 5+i {
			t.Errorf("variant %d: expected %d frames, got %d", i, 5+i, got[i].Frames())
		}
		if got[i].At(2, 0) != want {
			t.Errorf("variant %d: expected value %f, got %f", i, want, got[i].At(2, 0))
		}
	}

	count, err := client.GetVariantCount(id)
	if err != nil || count != 3 {
		t.Errorf("GetVariantCount = %d, %v; want 3", count, err)
	}
}

func TestStoreVariantsErrors(t *testing.T) {
	client, _ := setupTestDB(t)

	err := client.StoreVariants("missing", []*feature.Matrix{testVariant(t, 3, 5, 0)})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	id, _, _ := client.RegisterReference("Narrow", 3)
	err = client.StoreVariants(id, []*feature.Matrix{testVariant(t, 3, 5, 0), testVariant(t, 4, 5, 0)})
	if !errors.Is(err, align.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}

	// The failed batch must not leave a partial write behind.
	count, _ := client.GetVariantCount(id)
	if count != 0 {
		t.Errorf("Expected 0 variants after failed store, found %d", count)
	}
}

func TestGetAllVariants(t *testing.T) {
	client, _ := setupTestDB(t)

	idA, _, _ := client.RegisterReference("A", 2)
	idB, _, _ := client.RegisterReference("B", 2)
	client.StoreVariants(idA, []*feature.Matrix{testVariant(t, 2, 4, 1)})
	client.StoreVariants(idB, []*feature.Matrix{testVariant(t, 2, 4, 0), testVariant(t, 2, 4, 1)})

	all, err := client.GetAllVariants()
	if err != nil {
		t.Fatalf("GetAllVariants failed: %v", err)
	}
	if len(all[idA]) != 1 || len(all[idB]) != 2 {
		t.Errorf("Unexpected grouping: A=%d B=%d", len(all[idA]), len(all[idB]))
	}
}

func TestDeleteReferenceWithVariants(t *testing.T) {
	client, _ := setupTestDB(t)

	id, _, _ := client.RegisterReference("To Delete", 2)
	client.StoreVariants(id, []*feature.Matrix{testVariant(t, 2, 4, 1), testVariant(t, 2, 4, 0)})

	if err := client.DeleteReferenceByID(id); err != nil {
		t.Fatalf("Failed to delete reference: %v", err)
	}

	if _, err := client.GetReferenceByID(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected reference to be deleted, got %v", err)
	}

	var count int64
	client.DB.Model(&Variant{}).Where("reference_id = ?", id).Count(&count)
	if count != 0 {
		t.Errorf("Expected 0 variants after reference deletion, found %d", count)
	}

	if err := client.DeleteReferenceByID(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestListReferences(t *testing.T) {
	client, _ := setupTestDB(t)

	id1, _, _ := client.RegisterReference("Song A", 12)
	id2, _, _ := client.RegisterReference("Song B", 12)
	id3, _, _ := client.RegisterReference("Song C", 12)

	if id1 == id2 || id2 == id3 || id1 == id3 {
		t.Error("Expected unique IDs for different references")
	}

	refs, err := client.ListReferences()
	if err != nil {
		t.Fatalf("ListReferences failed: %v", err)
	}
	if len(refs) != 3 {
		t.Errorf("Expected 3 references, found %d", len(refs))
	}
}

func TestNilClient(t *testing.T) {
	var client *DBClient

	if _, _, err := client.RegisterReference("x", 1); err == nil {
		t.Error("Expected error from nil client")
	}
	if err := client.DeleteReferenceByID("x"); err == nil {
		t.Error("Expected error from nil client")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close on nil client should be a no-op, got %v", err)
	}
}

func TestStoreVariantsConcurrentAppends(t *testing.T) {
	client, _ := setupTestDB(t)
	id, _, _ := client.RegisterReference("Concurrent", 2)

	const writers = 8
	pairs := make([][]*feature.Matrix, writers)
	for w := range pairs {
		pairs[w] = []*feature.Matrix{testVariant(t, 2, 3, float64(w)), testVariant(t, 2, 3, float64(w))}
	}

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for _, pair := range pairs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.StoreVariants(id, pair)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent StoreVariants failed: %v", err)
		}
	}

	var rows []Variant
	if err := client.DB.Where("reference_id = ?", id).Order("position").Find(&rows).Error; err != nil {
		t.Fatalf("Failed to read variants: %v", err)
	}
	if len(rows) != 2*writers {
		t.Fatalf("Expected %d variants, got %d", 2*writers, len(rows))
	}
	for i, r := range rows {
		if r.Position != i {
			t.Errorf("row %d has position %d", i, r.Position)
		}
	}

	got, _ := client.GetVariants(id)
	for i := 0; i < len(got); i += 2 {
		if got[i].At(0, 0) != got[i+1].At(0, 0) {
			t.Errorf("variants %d and %d came from different appends", i, i+1)
		}
	}
}

func TestStoreVariantsAppendsAfterHighestPosition(t *testing.T) {
	client, _ := setupTestDB(t)
	id, _, _ := client.RegisterReference("Gapped", 2)

	if err := client.StoreVariants(id, []*feature.Matrix{testVariant(t, 2, 3, 0), testVariant(t, 2, 3, 1)}); err != nil {
		t.Fatalf("Failed to store variants: %v", err)
	}
	if err := client.DB.Where("reference_id = ? AND position = ?", id, 0).Delete(&Variant{}).Error; err != nil {
		t.Fatalf("Failed to delete variant: %v", err)
	}
	if err := client.StoreVariants(id, []*feature.Matrix{testVariant(t, 2, 3, 2)}); err != nil {
		t.Fatalf("Append after gap failed: %v", err)
	}

	var rows []Variant
	client.DB.Where("reference_id = ?", id).Order("position").Find(&rows)
	if len(rows) != 2 || rows[0].Position != 1 || rows[1].Position != 2 {
		t.Errorf("Unexpected positions: %+v", rows)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: variants.reference_id, variants.position (2067)")) {
		t.Error("Expected SQLite unique constraint error to be recognised")
	}
	if !isUniqueViolation(fmt.Errorf("batch insert variants: %w", gorm.ErrDuplicatedKey)) {
		t.Error("Expected wrapped gorm.ErrDuplicatedKey to be recognised")
	}
	if isUniqueViolation(errors.New("database is locked")) {
		t.Error("Lock errors are not unique violations")
	}
}
