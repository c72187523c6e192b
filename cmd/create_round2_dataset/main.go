// Command create_round2_dataset writes the round-2 dataset by applying the
// revision policy to every round-1 file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/ahrav/go-crossval/infrastructure/metrics"
	"github.com/ahrav/go-crossval/internal/application"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file (defaults when empty)")
		input      = flag.String("input", "", "Round-1 dataset directory, overrides paths.dataset")
		output     = flag.String("output", "", "Round-2 dataset directory, overrides paths.round2_dataset")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg, err := application.LoadConfigOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *input != "" {
		cfg.Paths.Dataset = *input
	}
	if *output != "" {
		cfg.Paths.Round2Dataset = *output
	}
	if cfg.Paths.Dataset == "" || cfg.Paths.Round2Dataset == "" {
		log.Fatal("Both the round-1 and round-2 dataset directories are required")
	}

	collector := metrics.NewCollector(logger)
	sum, err := application.CreateRound2(context.Background(), cfg, collector, logger)
	if err != nil {
		log.Fatalf("Failed to create round-2 dataset: %v", err)
	}
	if path := cfg.Paths.MetricsTextfile; path != "" {
		if err := collector.WriteTextfile(path); err != nil {
			logger.Warn("could not write metrics textfile", "path", path, "error", err)
		}
	}

	fmt.Printf("Round-2 dataset written to %s\n", cfg.Paths.Round2Dataset)
	fmt.Printf("- Files: %d\n", sum.Files)
	fmt.Printf("- Cases: %d (%d revised)\n", sum.Cases, sum.Revised)
	if len(sum.Skipped) > 0 {
		fmt.Printf("- Skipped: %s\n", strings.Join(sum.Skipped, ", "))
	}
}
