package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateUUID(t *testing.T) {
	id1 := GenerateUUID()
	id2 := GenerateUUID()

	if !IsValidUUID(id1) || !IsValidUUID(id2) {
		t.Fatalf("Expected valid UUIDs, got %q and %q", id1, id2)
	}
	if id1 == id2 {
		t.Error("Expected unique UUIDs")
	}
	if IsValidUUID("not-a-uuid") {
		t.Error("Expected invalid UUID to be rejected")
	}
}

func TestJSONFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "data.json")
	in := map[string][]int{"ranks": {1, 2, 3}}

	if err := WriteJSONFile(path, in); err != nil {
		t.Fatalf("WriteJSONFile failed: %v", err)
	}
	if !FileExists(path) {
		t.Fatalf("Expected %s to exist", path)
	}

	var out map[string][]int
	if err := ReadJSONFile(path, &out); err != nil {
		t.Fatalf("ReadJSONFile failed: %v", err)
	}
	if len(out["ranks"]) != 3 || out["ranks"][2] != 3 {
		t.Errorf("Unexpected decoded value: %v", out)
	}
}

func TestReadJSONFileErrors(t *testing.T) {
	dir := t.TempDir()
	if err := ReadJSONFile(filepath.Join(dir, "missing.json"), &struct{}{}); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{not json"), 0644)
	if err := ReadJSONFile(bad, &struct{}{}); err == nil {
		t.Error("Expected error for malformed JSON")
	}
	if FileExists(dir) {
		t.Error("Expected directory not to count as a file")
	}
}
