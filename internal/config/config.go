// Package config loads settings for the CLI and server binaries. It uses koanf
// to read an optional YAML file, then lets ACOUSTIC_* environment variables
// override individual values.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/conv"
	"github.com/himanishpuri/AcousticAlign/pkg/logger"
)

// Config holds every tunable of the binaries.
type Config struct {
	DBPath   string `koanf:"db_path"`
	Port     int    `koanf:"port"`
	LogLevel string `koanf:"log_level"`

	// Search
	Aligner     string  `koanf:"aligner"` // bruteforce or convolution
	Backend     string  `koanf:"backend"` // gemm or fft
	Delta       int     `koanf:"delta"`   // 0 keeps the aligner's own default
	Threshold   float64 `koanf:"threshold"`
	Workers     int     `koanf:"workers"`
	PitchShifts int     `koanf:"pitch_shifts"`
}

// Configuration validation errors.
var (
	ErrInvalidPort        = errors.New("port must be a valid integer between 1 and 65535")
	ErrInvalidInteger     = errors.New("value must be a valid integer")
	ErrInvalidFloat       = errors.New("value must be a valid number")
	ErrInvalidAligner     = errors.New("aligner must be bruteforce or convolution")
	ErrInvalidBackend     = errors.New("backend must be gemm or fft")
	ErrInvalidDelta       = errors.New("delta must not be negative")
	ErrInvalidWorkers     = errors.New("workers must be at least 1")
	ErrInvalidPitchShifts = errors.New("pitch_shifts must not be negative")
	ErrInvalidLogLevel    = errors.New("log_level must be debug, info, warn, error or fatal")
)

// Default values.
const (
	DefaultDBPath   = "acousticalign.sqlite3"
	DefaultPort     = 8080
	DefaultLogLevel = "info"
	DefaultAligner  = "bruteforce"
	DefaultBackend  = "gemm"
)

// Load reads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file values. It returns the
// config and a slice of validation errors (empty if valid). A config file that
// cannot be loaded is reported as the only error.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, err := getEnvIntOrDefaultMulti([]string{"ACOUSTIC_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("%w: %v", ErrInvalidPort, err))
	}
	delta, err := getEnvIntOrDefault("ACOUSTIC_DELTA", k.Int("delta"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	workers, err := getEnvIntOrDefault("ACOUSTIC_WORKERS", k.Int("workers"), runtime.NumCPU())
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	shifts, err := getEnvIntOrDefault("ACOUSTIC_PITCH_SHIFTS", k.Int("pitch_shifts"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	threshold, err := getEnvFloatOrDefault("ACOUSTIC_THRESHOLD", k.Float64("threshold"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		DBPath:      getEnvOrDefault("ACOUSTIC_DB_PATH", k.String("db_path"), DefaultDBPath),
		Port:        port,
		LogLevel:    getEnvOrDefault("LOG_LEVEL", k.String("log_level"), DefaultLogLevel),
		Aligner:     strings.ToLower(getEnvOrDefault("ACOUSTIC_ALIGNER", k.String("aligner"), DefaultAligner)),
		Backend:     strings.ToLower(getEnvOrDefault("ACOUSTIC_BACKEND", k.String("backend"), DefaultBackend)),
		Delta:       delta,
		Threshold:   threshold,
		Workers:     workers,
		PitchShifts: shifts,
	}

	errs := append(loadErrs, cfg.Validate()...)
	return cfg, errs
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise
// the koanf value, or default. A zero koanf value falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	return getEnvIntOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", key, ErrInvalidInteger)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidFloat)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks value ranges and enumerations.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, ErrInvalidLogLevel)
	}
	if c.Aligner != "bruteforce" && c.Aligner != "convolution" {
		errs = append(errs, ErrInvalidAligner)
	}
	if _, err := conv.ParseBackend(c.Backend); err != nil {
		errs = append(errs, ErrInvalidBackend)
	}
	if c.Delta < 0 {
		errs = append(errs, ErrInvalidDelta)
	}
	if c.Workers < 1 {
		errs = append(errs, ErrInvalidWorkers)
	}
	if c.PitchShifts < 0 {
		errs = append(errs, ErrInvalidPitchShifts)
	}

	return errs
}

// LogSummary returns the configuration as strings suitable for logging.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"db_path":      c.DBPath,
		"port":         strconv.Itoa(c.Port),
		"log_level":    c.LogLevel,
		"aligner":      c.Aligner,
		"backend":      c.Backend,
		"delta":        strconv.Itoa(c.Delta),
		"threshold":    strconv.FormatFloat(c.Threshold, 'g', -1, 64),
		"workers":      strconv.Itoa(c.Workers),
		"pitch_shifts": strconv.Itoa(c.PitchShifts),
	}
}
