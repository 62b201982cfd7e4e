package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kirillkom/dermafusion/internal/bootstrap"
	"github.com/kirillkom/dermafusion/internal/config"
	"github.com/kirillkom/dermafusion/internal/infrastructure/spreadsheet"
	"github.com/kirillkom/dermafusion/internal/observability/logging"
)

func main() {
	file := flag.String("file", "", "foreign label sheet (.xlsx, .xlsm or .json)")
	sheet := flag.String("sheet", "", "worksheet name, first sheet when empty")
	domainID := flag.String("domain", "", "foreign domain id")
	minScore := flag.Int("min-score", 0, "minimum match score in [0,100], LABEL_MATCH_MIN_SCORE when 0")
	dryRun := flag.Bool("dry-run", false, "match without writing cross-maps")
	flag.Parse()

	if *file == "" || *domainID == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg := config.Load()
	logging.Configure("crossmap-import", cfg.LogLevel, true)
	if *minScore <= 0 {
		*minScore = cfg.MatchMinScore
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rows, err := spreadsheet.ReadFile(*file, *sheet)
	if err != nil {
		log.Fatalf("read labels: %v", err)
	}

	app, err := bootstrap.NewImporter(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	report, err := app.CrossMapUC.Import(ctx, *domainID, rows, *minScore, *dryRun)
	if err != nil {
		log.Fatalf("import cross maps: %v", err)
	}

	fmt.Printf("rows: %d matched: %d stored: %d unmatched: %d\n", len(rows), len(report.Matched), report.Stored, len(report.Unmatched))
	for _, row := range report.Unmatched {
		fmt.Printf("unmatched\t%s\t%s\n", row.DiseaseID, row.Label)
	}
}
