package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/himanishpuri/AcousticAlign/internal/config"
	"github.com/himanishpuri/AcousticAlign/pkg/acousticdna"
	"github.com/himanishpuri/AcousticAlign/pkg/logger"
)

var (
	configPath     string
	port           int
	dbPath         string
	allowedOrigins string
)

func init() {
	flag.StringVar(&configPath, "config", os.Getenv("ACOUSTIC_CONFIG"), "Optional YAML config file")
	flag.IntVar(&port, "port", 0, "HTTP server port (env: ACOUSTIC_PORT)")
	flag.StringVar(&dbPath, "db", "", "Path to SQLite database (env: ACOUSTIC_DB_PATH)")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
}

// parseOrigins splits the -origins flag.
func parseOrigins(raw string) []string {
	if raw == "*" {
		return []string{"*"}
	}
	origins := strings.Split(raw, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	cfg, errs := config.Load(configPath)
	if cfg == nil {
		log.Fatalf("Failed to load config: %v", errs[0])
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = port
		case "db":
			cfg.DBPath = dbPath
		}
	})
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			log.Errorf("Invalid configuration: %v", err)
		}
		os.Exit(1)
	}
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	for k, v := range cfg.LogSummary() {
		log.Debugf("config %s=%s", k, v)
	}

	opts, err := cfg.ServiceOptions(log.WithPrefix("[service]"))
	if err != nil {
		log.Fatalf("Failed to configure aligner: %v", err)
	}
	service, err := acousticdna.NewService(opts...)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	server := NewServer(service, &ServerConfig{
		Port:           cfg.Port,
		DBPath:         cfg.DBPath,
		Aligner:        cfg.Aligner,
		AllowedOrigins: parseOrigins(allowedOrigins),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		log.Errorf("Server failed: %v", err)
		os.Exit(1)
	}
}
