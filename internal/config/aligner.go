package config

import (
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/align"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/conv"
)

// ConvOptions translates the search settings into convolution options. Delta
// is only passed when set, so each consumer keeps its own default.
func (c *Config) ConvOptions() ([]conv.Option, error) {
	backend, err := conv.ParseBackend(c.Backend)
	if err != nil {
		return nil, err
	}
	opts := []conv.Option{
		conv.WithBackend(backend),
		conv.WithThreshold(c.Threshold),
		conv.WithWorkers(c.Workers),
	}
	if c.Delta > 0 {
		opts = append(opts, conv.WithDelta(c.Delta))
	}
	return opts, nil
}

// NewAligner returns the aligner selected by Aligner.
func (c *Config) NewAligner() (align.Aligner, error) {
	if c.Aligner != "convolution" {
		return align.NewBruteForce(), nil
	}
	opts, err := c.ConvOptions()
	if err != nil {
		return nil, err
	}
	return conv.NewMatcher(opts...), nil
}

// ServiceOptions builds the options for acousticdna.NewService.
func (c *Config) ServiceOptions(log acousticdna.Logger) ([]acousticdna.Option, error) {
	aligner, err := c.NewAligner()
	if err != nil {
		return nil, err
	}
	return []acousticdna.Option{
		acousticdna.WithDBPath(c.DBPath),
		acousticdna.WithLogger(log),
		acousticdna.WithAligner(aligner),
		acousticdna.WithWorkers(c.Workers),
		acousticdna.WithPitchShifts(c.PitchShifts),
	}, nil
}
