package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/conv"
)

var configEnv = []string{
	"ACOUSTIC_DB_PATH", "ACOUSTIC_PORT", "PORT", "LOG_LEVEL", "ACOUSTIC_ALIGNER",
	"ACOUSTIC_BACKEND", "ACOUSTIC_DELTA", "ACOUSTIC_THRESHOLD", "ACOUSTIC_WORKERS",
	"ACOUSTIC_PITCH_SHIFTS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Expected no errors, got %v", errs)
	}
	if cfg.DBPath != DefaultDBPath || cfg.Port != DefaultPort {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Aligner != DefaultAligner || cfg.Backend != DefaultBackend {
		t.Errorf("Unexpected search defaults: %+v", cfg)
	}
	if cfg.Workers < 1 {
		t.Errorf("Expected at least one worker, got %d", cfg.Workers)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
db_path: /tmp/from-file.sqlite3
port: 9090
aligner: convolution
backend: fft
delta: 4
threshold: 0.5
workers: 3
`)
	t.Setenv("ACOUSTIC_PORT", "7070")
	t.Setenv("ACOUSTIC_BACKEND", "GEMM")

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("Expected no errors, got %v", errs)
	}
	if cfg.DBPath != "/tmp/from-file.sqlite3" {
		t.Errorf("Expected db_path from file, got %s", cfg.DBPath)
	}
	if cfg.Port != 7070 {
		t.Errorf("Expected env port to win, got %d", cfg.Port)
	}
	if cfg.Backend != "gemm" {
		t.Errorf("Expected env backend lower-cased, got %s", cfg.Backend)
	}
	if cfg.Aligner != "convolution" || cfg.Delta != 4 || cfg.Threshold != 0.5 || cfg.Workers != 3 {
		t.Errorf("Unexpected file values: %+v", cfg)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("ACOUSTIC_PORT", "eighty")
	t.Setenv("ACOUSTIC_ALIGNER", "neural")
	t.Setenv("ACOUSTIC_BACKEND", "cuda")
	t.Setenv("ACOUSTIC_DELTA", "-2")
	t.Setenv("ACOUSTIC_PITCH_SHIFTS", "-1")
	t.Setenv("LOG_LEVEL", "loud")

	_, errs := Load("")
	for _, want := range []error{ErrInvalidPort, ErrInvalidAligner, ErrInvalidBackend, ErrInvalidDelta, ErrInvalidPitchShifts, ErrInvalidLogLevel} {
		found := false
		for _, err := range errs {
			if errors.Is(err, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected %v in %v", want, errs)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	cfg, errs := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg != nil || len(errs) != 1 {
		t.Errorf("Expected a single load error, got cfg=%v errs=%v", cfg, errs)
	}
}

func TestNewAligner(t *testing.T) {
	cfg := &Config{Aligner: "bruteforce", Backend: "gemm", Workers: 1}
	a, err := cfg.NewAligner()
	if err != nil {
		t.Fatalf("NewAligner failed: %v", err)
	}
	if _, ok := a.(*align.BruteForce); !ok {
		t.Errorf("Expected *align.BruteForce, got %T", a)
	}

	cfg.Aligner = "convolution"
	cfg.Backend = "fft"
	a, err = cfg.NewAligner()
	if err != nil {
		t.Fatalf("NewAligner failed: %v", err)
	}
	if _, ok := a.(*conv.Matcher); !ok {
		t.Errorf("Expected *conv.Matcher, got %T", a)
	}

	cfg.Backend = "cuda"
	if _, err := cfg.NewAligner(); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
