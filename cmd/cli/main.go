package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/himanishpuri/AcousticAlign/internal/config"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna/feature"
	"github.com/himanishpuri/AcousticAlign/pkg/logger"
	"github.com/himanishpuri/AcousticAlign/pkg/utils"
)

// Global flags
var (
	configPath  string
	dbPath      string
	alignerName string
	backendName string
	delta       int
	threshold   float64
	workers     int
	pitchShifts int
	logLevel    string
)

func init() {
	flag.StringVar(&configPath, "config", os.Getenv("ACOUSTIC_CONFIG"), "Optional YAML config file")
	flag.StringVar(&dbPath, "db", "", "Path to the SQLite database file (env: ACOUSTIC_DB_PATH)")
	flag.StringVar(&alignerName, "aligner", "", "Aligner: bruteforce or convolution (env: ACOUSTIC_ALIGNER)")
	flag.StringVar(&backendName, "backend", "", "Convolution backend: gemm or fft (env: ACOUSTIC_BACKEND)")
	flag.IntVar(&delta, "delta", 0, "Finite-difference width, 0 keeps the default (env: ACOUSTIC_DELTA)")
	flag.Float64Var(&threshold, "threshold", 0, "Decision threshold (env: ACOUSTIC_THRESHOLD)")
	flag.IntVar(&workers, "workers", 0, "Concurrent comparisons (env: ACOUSTIC_WORKERS)")
	flag.IntVar(&pitchShifts, "pitch-shifts", 0, "Store +/-N channel shifts of every added variant (env: ACOUSTIC_PITCH_SHIFTS)")
	flag.StringVar(&logLevel, "log-level", "", "debug, info, warn, error (env: LOG_LEVEL)")
}

// loadConfig merges the config file, environment and any flags given
// explicitly on the command line, in increasing precedence.
func loadConfig() (*config.Config, error) {
	cfg, errs := config.Load(configPath)
	if cfg == nil {
		return nil, errs[0]
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.DBPath = dbPath
		case "aligner":
			cfg.Aligner = strings.ToLower(alignerName)
		case "backend":
			cfg.Backend = strings.ToLower(backendName)
		case "delta":
			cfg.Delta = delta
		case "threshold":
			cfg.Threshold = threshold
		case "workers":
			cfg.Workers = workers
		case "pitch-shifts":
			cfg.PitchShifts = pitchShifts
		case "log-level":
			cfg.LogLevel = logLevel
		}
	})

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return cfg, nil
}

// createService creates a new service with configured options
func createService(cfg *config.Config, extra ...acousticdna.Option) (acousticdna.Service, error) {
	opts, err := cfg.ServiceOptions(logger.GetLogger())
	if err != nil {
		return nil, err
	}
	return acousticdna.NewService(append(opts, extra...)...)
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	log := logger.GetLogger()

	printBanner()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	command := args[0]
	log.Infof("Executing command: %s", command)

	switch command {
	case "add":
		handleAdd(cfg, args[1:])
	case "search":
		handleSearch(cfg, args[1:])
	case "evaluate":
		handleEvaluate(cfg, args[1:])
	case "convolve":
		handleConvolve(cfg, args[1:])
	case "list":
		handleList(cfg)
	case "delete":
		handleDelete(cfg, args[1:])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
    _                        _   _         _    _ _
   / \   ___ ___  _   _ ___| |_(_) ___   / \  | (_) __ _ _ __
  / _ \ / __/ _ \| | | / __| __| |/ __| / _ \ | | |/ _' | '_ \
 / ___ \ (_| (_) | |_| \__ \ |_| | (__ / ___ \| | | (_| | | | |
/_/   \_\___\___/ \__,_|___/\__|_|\___/_/   \_\_|_|\__, |_| |_|
                                                   |___/
           Feature Alignment & Ranking CLI Tool
`
	fmt.Println(banner)
}

func readMatrix(path string) (*feature.Matrix, error) {
	var m feature.Matrix
	if err := utils.ReadJSONFile(path, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func handleAdd(cfg *config.Config, args []string) {
	log := logger.GetLogger()

	if len(args) < 2 {
		fmt.Println("Usage: acousticalign add <name> <variant.json> [variant.json...]")
		os.Exit(1)
	}
	name := args[0]

	variants := make([]*feature.Matrix, 0, len(args)-1)
	for _, path := range args[1:] {
		m, err := readMatrix(path)
		if err != nil {
			fmt.Printf("❌ Failed to read variant: %v\n", err)
			log.Errorf("Reading %s failed: %v", path, err)
			os.Exit(1)
		}
		variants = append(variants, m)
	}

	fmt.Println("\n🔧 Initializing service...")
	svc, err := createService(cfg)
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	id, err := svc.AddReference(ctx, name, variants)
	if err != nil {
		fmt.Printf("\n❌ Failed to add reference: %v\n", err)
		log.Errorf("AddReference failed: %v", err)
		os.Exit(1)
	}

	ref, err := svc.GetReference(id)
	if err != nil {
		fmt.Printf("❌ Failed to read back reference: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Successfully stored reference!")
	fmt.Printf("   ID:       %s\n", ref.ID)
	fmt.Printf("   Name:     %s\n", ref.Name)
	fmt.Printf("   Channels: %d\n", ref.Channels)
	fmt.Printf("   Variants: %d\n", ref.Variants)
}

func handleSearch(cfg *config.Config, args []string) {
	log := logger.GetLogger()

	searchCmd := flag.NewFlagSet("search", flag.ExitOnError)
	top := searchCmd.Int("top", 10, "Number of results to display")
	if len(args) < 1 {
		fmt.Println("Usage: acousticalign search <query.json> [--top N]")
		os.Exit(1)
	}
	queryPath := args[0]
	searchCmd.Parse(args[1:])

	query, err := readMatrix(queryPath)
	if err != nil {
		fmt.Printf("❌ Failed to read query: %v\n", err)
		os.Exit(1)
	}

	svc, err := createService(cfg)
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	fmt.Printf("🔍 Aligning %dx%d query (%s aligner)...\n", query.Channels(), query.Frames(), cfg.Aligner)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	results, err := svc.Search(ctx, query)
	if err != nil {
		fmt.Printf("\n❌ Search failed: %v\n", err)
		log.Errorf("Search failed: %v", err)
		os.Exit(1)
	}

	if len(results) == 0 {
		fmt.Println("\n📭 No references in database")
		return
	}

	maxDisplay := *top
	if len(results) < maxDisplay {
		maxDisplay = len(results)
	}

	fmt.Printf("\n🎵 Top %d of %d references:\n\n", maxDisplay, len(results))
	for _, r := range results[:maxDisplay] {
		fmt.Printf("%d. \"%s\" (ID: %s)\n", r.Rank, r.Name, r.ReferenceID)
		fmt.Printf("   Distance: %.4f | Variant: %d | Offset: %d frames\n\n", r.Distance, r.Variant, r.Offset)
	}
	if len(results) > maxDisplay {
		fmt.Printf("... and %d more references\n", len(results)-maxDisplay)
	}
}

// manifest is the evaluate input: labelled queries whose reference is given
// by id or by name.
type manifest struct {
	Queries []struct {
		Reference string          `json:"reference"`
		Features  *feature.Matrix `json:"features"`
	} `json:"queries"`
}

func handleEvaluate(cfg *config.Config, args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: acousticalign evaluate <manifest.json>")
		os.Exit(1)
	}

	var man manifest
	if err := utils.ReadJSONFile(args[0], &man); err != nil {
		fmt.Printf("❌ Failed to read manifest: %v\n", err)
		os.Exit(1)
	}

	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(len(man.Queries)),
		mpb.PrependDecorators(
			decor.Name("Evaluating: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 30),
		),
	)
	last := time.Now()
	progress := func(done, total int) {
		bar.EwmaIncrement(time.Since(last))
		last = time.Now()
	}

	svc, err := createService(cfg, acousticdna.WithProgress(progress))
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	refs, err := svc.ListReferences()
	if err != nil {
		fmt.Printf("❌ Failed to list references: %v\n", err)
		os.Exit(1)
	}
	byName := make(map[string]string, len(refs))
	for _, r := range refs {
		byName[r.Name] = r.ID
	}

	queries := make([]*feature.Matrix, 0, len(man.Queries))
	truth := make([]string, 0, len(man.Queries))
	for i, q := range man.Queries {
		if q.Features == nil {
			fmt.Printf("❌ Query %d has no features\n", i)
			os.Exit(1)
		}
		id := q.Reference
		if named, ok := byName[q.Reference]; ok {
			id = named
		}
		queries = append(queries, q.Features)
		truth = append(truth, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	ev, err := svc.Evaluate(ctx, queries, truth)
	if err != nil {
		bar.Abort(false)
		p.Wait()
		fmt.Printf("\n❌ Evaluation failed: %v\n", err)
		log.Errorf("Evaluate failed: %v", err)
		os.Exit(1)
	}
	p.Wait()

	fmt.Println("\n📊 Evaluation results:")
	fmt.Printf("   Queries:   %d\n", ev.Queries)
	fmt.Printf("   Found:     %d\n", ev.Found)
	fmt.Printf("   Not found: %d\n", ev.NotFound)
	fmt.Printf("   MRR:       %.4f\n", ev.MRR)
}

func handleList(cfg *config.Config) {
	log := logger.GetLogger()

	svc, err := createService(cfg)
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	refs, err := svc.ListReferences()
	if err != nil {
		fmt.Printf("❌ Failed to list references: %v\n", err)
		log.Errorf("ListReferences failed: %v", err)
		os.Exit(1)
	}

	if len(refs) == 0 {
		fmt.Println("\n📭 No references in database")
		return
	}

	fmt.Printf("\n📚 Found %d reference(s):\n\n", len(refs))
	for i, r := range refs {
		fmt.Printf("%d. \"%s\" (ID: %s)\n", i+1, r.Name, r.ID)
		fmt.Printf("   Channels: %d | Variants: %d | Added: %s\n\n",
			r.Channels, r.Variants, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	log.Infof("Listed %d references", len(refs))
}

func handleDelete(cfg *config.Config, args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: acousticalign delete <reference_id>")
		os.Exit(1)
	}
	id := args[0]
	if !utils.IsValidUUID(id) {
		fmt.Printf("❌ Invalid reference ID: %s\n", id)
		os.Exit(1)
	}

	svc, err := createService(cfg)
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	ref, err := svc.GetReference(id)
	if err != nil {
		fmt.Printf("❌ Reference not found (ID: %s)\n", id)
		log.Warnf("Reference %s not found: %v", id, err)
		os.Exit(1)
	}

	if err := svc.DeleteReference(id); err != nil {
		fmt.Printf("❌ Failed to delete reference: %v\n", err)
		log.Errorf("DeleteReference failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\n✅ Successfully deleted reference:\n")
	fmt.Printf("   ID:       %s\n", ref.ID)
	fmt.Printf("   Name:     %s\n", ref.Name)
	fmt.Printf("   Variants: %d\n", ref.Variants)
}

func printUsage() {
	fmt.Println("AcousticAlign - Feature Matrix Alignment CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  -config <file>       YAML config file (env: ACOUSTIC_CONFIG)")
	fmt.Println("  -db <path>           SQLite database (env: ACOUSTIC_DB_PATH, default: acousticalign.sqlite3)")
	fmt.Println("  -aligner <name>      bruteforce | convolution (default: bruteforce)")
	fmt.Println("  -backend <name>      gemm | fft (default: gemm)")
	fmt.Println("  -delta <n>           Finite-difference width for the convolution aligner")
	fmt.Println("  -threshold <x>       Decision threshold (default: 0)")
	fmt.Println("  -workers <n>         Concurrent comparisons (default: number of CPUs)")
	fmt.Println("  -pitch-shifts <n>    Also store +/-n channel rotations of added variants")
	fmt.Println("  -log-level <level>   debug | info | warn | error")
	fmt.Println("\nUsage:")
	fmt.Println("  acousticalign [global-options] add <name> <variant.json> [variant.json...]")
	fmt.Println("  acousticalign [global-options] search <query.json> [--top N]")
	fmt.Println("  acousticalign [global-options] evaluate <manifest.json>")
	fmt.Println("  acousticalign [global-options] convolve <kernel.json> <queries.json> [--responses]")
	fmt.Println("  acousticalign [global-options] list")
	fmt.Println("  acousticalign [global-options] delete <reference_id>")
	fmt.Println("\nFeature files hold one matrix as an array of channel rows, e.g. [[1,0,1],[0,1,1]].")
	fmt.Println("\nExamples:")
	fmt.Println("  acousticalign -pitch-shifts 2 add \"Take Five\" take_five.json")
	fmt.Println("  acousticalign -aligner convolution -backend fft search clip.json")
}
