// Command domain_report renders the Markdown summaries over the validated
// datasets.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/ahrav/go-crossval/infrastructure/report"
	"github.com/ahrav/go-crossval/internal/application"
)

var titles = map[string]string{
	"summary":      "Domain Summary",
	"compare":      "Domain Summary: Round 1 vs Round 2",
	"contributors": "Contributors",
	"pearl":        "Pearl Levels by Domain",
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file (defaults when empty)")
		mode       = flag.String("mode", "summary", "Report to render: summary, compare, contributors or pearl")
		dataset    = flag.String("dataset", "", "Round-1 dataset directory, overrides paths.dataset")
		round2     = flag.String("round2", "", "Round-2 dataset directory, overrides paths.round2_dataset")
		outPath    = flag.String("output", "", "Markdown output file (stdout when empty)")
	)
	flag.Parse()

	title, ok := titles[*mode]
	if !ok {
		log.Fatalf("Unknown mode %q", *mode)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg, err := application.LoadConfigOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dataset != "" {
		cfg.Paths.Dataset = *dataset
	}
	if *round2 != "" {
		cfg.Paths.Round2Dataset = *round2
	}

	reporter, err := application.NewReporter(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create reporter: %v", err)
	}

	var tbl report.Table
	switch *mode {
	case "summary":
		tbl, err = reporter.DomainSummary()
	case "compare":
		tbl, err = reporter.Comparison()
	case "contributors":
		tbl, err = reporter.Contributors()
	case "pearl":
		tbl, err = reporter.PearlSummary()
	}
	if err != nil {
		log.Fatalf("Failed to build %s report: %v", *mode, err)
	}

	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *outPath, err)
		}
		defer f.Close()
		w = f
	}
	if _, err := fmt.Fprintf(w, "# %s\n\n", title); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
	if err := tbl.WriteMarkdown(w); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
	if *outPath != "" {
		fmt.Fprintf(os.Stderr, "Report saved to %s\n", *outPath)
	}
}
