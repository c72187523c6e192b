// Command grade_submissions grades every submission in the registry and
// writes the grading CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/ahrav/go-crossval/infrastructure/metrics"
	"github.com/ahrav/go-crossval/internal/application"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML configuration file (defaults when empty)")
		submissions = flag.String("submissions", "", "Submissions root, overrides paths.submissions")
		registry    = flag.String("registry", "", "Submission registry, overrides paths.registry")
		roster      = flag.String("roster", "", "Cross-validation roster CSV, overrides paths.roster")
		output      = flag.String("output", "", "Grading CSV, overrides paths.grades_out")
		verbose     = flag.Bool("v", false, "Log at debug level")
	)
	flag.Parse()

	logger := newLogger(*verbose)
	cfg, err := application.LoadConfigOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	override(&cfg.Paths.Submissions, *submissions)
	override(&cfg.Paths.Registry, *registry)
	override(&cfg.Paths.Roster, *roster)
	override(&cfg.Paths.GradesOut, *output)

	collector := metrics.NewCollector(logger)
	grader, err := application.NewGrader(cfg,
		application.WithLogger(logger),
		application.WithMetrics(collector),
	)
	if err != nil {
		log.Fatalf("Failed to create grader: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, summary, err := grader.Run(ctx)
	if err != nil {
		log.Fatalf("Grading failed: %v", err)
	}

	if path := cfg.Paths.MetricsTextfile; path != "" {
		if err := collector.WriteTextfile(path); err != nil {
			logger.Warn("could not write metrics textfile", "path", path, "error", err)
		}
	}

	fmt.Printf("Graded %d submissions (%d skipped)\n", summary.Graded, summary.Skipped)
	fmt.Printf("Results saved to %s\n", cfg.Paths.GradesOut)
	fmt.Printf("Average final score: %.2f/10.0\n", summary.AverageFinal)
	fmt.Printf("Submissions with bonus: %d\n", summary.WithBonus)
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
