package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/himanishpuri/AcousticAlign/internal/config"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/conv"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
	"github.com/himanishpuri/AcousticAlign/pkg/logger"
	"github.com/himanishpuri/AcousticAlign/pkg/utils"
)

// kernelFile holds a projection bank either as explicit filters or as a flat
// [K, T, c] tensor.
type kernelFile struct {
	Filters []*feature.Matrix `json:"filters"`
	Shape   []int             `json:"shape"`
	Data    []float64         `json:"data"`
}

func (k kernelFile) projection() (*conv.Projection, error) {
	if len(k.Filters) > 0 {
		return conv.NewProjection(k.Filters...)
	}
	if len(k.Shape) != 3 {
		return nil, fmt.Errorf("kernel needs either filters or a [K, T, c] shape, got shape %v", k.Shape)
	}
	return conv.ProjectionFromTensor(k.Data, k.Shape[0], k.Shape[1], k.Shape[2])
}

func handleConvolve(cfg *config.Config, args []string) {
	log := logger.GetLogger()

	convCmd := flag.NewFlagSet("convolve", flag.ExitOnError)
	responses := convCmd.Bool("responses", false, "Print raw responses instead of decisions")
	framesFirst := convCmd.Bool("frames-first", false, "Queries are stored frames x channels")
	if len(args) < 2 {
		fmt.Println("Usage: acousticalign convolve <kernel.json> <queries.json> [--responses] [--frames-first]")
		os.Exit(1)
	}
	convCmd.Parse(args[2:])

	var kf kernelFile
	if err := utils.ReadJSONFile(args[0], &kf); err != nil {
		fmt.Printf("❌ Failed to read kernel: %v\n", err)
		os.Exit(1)
	}
	proj, err := kf.projection()
	if err != nil {
		fmt.Printf("❌ Invalid kernel: %v\n", err)
		os.Exit(1)
	}

	var queries []*feature.Matrix
	if err := utils.ReadJSONFile(args[1], &queries); err != nil {
		fmt.Printf("❌ Failed to read queries: %v\n", err)
		os.Exit(1)
	}
	if len(queries) == 0 {
		fmt.Println("📭 No queries to convolve")
		return
	}

	opts, err := cfg.ConvOptions()
	if err != nil {
		fmt.Printf("❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	shape := conv.Shape{Channels: queries[0].Channels(), Frames: queries[0].Frames()}
	if *framesFirst {
		opts = append(opts, conv.WithLayout(conv.LayoutFramesFirst))
		shape = conv.Shape{Channels: queries[0].Frames(), Frames: queries[0].Channels()}
	}

	aligner, err := conv.Build(proj, shape, opts...)
	if err != nil {
		fmt.Printf("❌ Failed to build aligner: %v\n", err)
		log.Errorf("Build failed: %v", err)
		os.Exit(1)
	}
	built := aligner.Shape()
	log.Infof("Built %d-filter aligner for %dx%d queries, output length %d, threshold %g",
		proj.Filters(), built.Channels, built.Frames, aligner.OutputLength(), aligner.Threshold())

	if *responses {
		out, err := aligner.Responses(queries)
		if err != nil {
			fmt.Printf("❌ Convolution failed: %v\n", err)
			os.Exit(1)
		}
		for i, r := range out {
			fmt.Printf("query %d: %v\n", i, r)
		}
		return
	}

	decisions, err := aligner.Run(queries)
	if err != nil {
		fmt.Printf("❌ Convolution failed: %v\n", err)
		log.Errorf("Run failed: %v", err)
		os.Exit(1)
	}
	for i, d := range decisions {
		var bits strings.Builder
		var fired []int
		for t, v := range d {
			bits.WriteByte('0' + v)
			if v == 1 {
				fired = append(fired, t)
			}
		}
		fmt.Printf("query %d: %s  fired at %v\n", i, bits.String(), fired)
	}
}
