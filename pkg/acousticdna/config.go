package acousticdna

import (
	"runtime"

	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/rank"
)

type Config struct {
	DBPath      string
	Workers     int
	PitchShifts int
	Logger      Logger
	Storage     Storage
	Aligner     align.Aligner
	Progress    rank.ProgressFunc
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

// WithAligner selects the aligner used for searches. The default is the
// brute-force Hamming aligner.
func WithAligner(a align.Aligner) Option {
	return func(c *Config) {
		c.Aligner = a
	}
}

// WithWorkers bounds how many references are compared concurrently.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithPitchShifts makes AddReference store every circular channel shift up to
// +/-n alongside each supplied variant.
func WithPitchShifts(n int) Option {
	return func(c *Config) {
		c.PitchShifts = n
	}
}

// WithProgress reports evaluation progress after each query.
func WithProgress(fn rank.ProgressFunc) Option {
	return func(c *Config) {
		c.Progress = fn
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:  "acousticalign.sqlite3",
		Workers: runtime.NumCPU(),
	}
}
