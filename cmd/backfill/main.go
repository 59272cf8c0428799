package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/nvago/printshop/internal/backfill"
	"github.com/nvago/printshop/internal/config"
	"github.com/nvago/printshop/internal/orders"
)

// backfill imports the hosted backend's order export into Postgres.
func main() {
	var (
		file         = flag.String("file", "", "path to the JSON order export")
		batchSize    = flag.Int("batch-size", 50, "orders per batch")
		concurrency  = flag.Int("concurrency", 5, "concurrent batches")
		dryRun       = flag.Bool("dry-run", false, "validate and report without writing")
		skipExisting = flag.Bool("skip-existing", true, "skip orders already present")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if *file == "" {
		logger.Fatal("-file is required")
	}

	cfg := config.Load("backfill")

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.WithError(err).Fatal("Database not reachable")
	}

	store := orders.NewStore(db, logger)
	if err := store.CreateTables(); err != nil {
		logger.WithError(err).Fatal("Failed to create tables")
	}

	importer := backfill.NewImporter(store, backfill.Config{
		BatchSize:    *batchSize,
		Concurrency:  *concurrency,
		DryRun:       *dryRun,
		SkipExisting: *skipExisting,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	result, err := importer.ImportFile(ctx, *file)
	if err != nil {
		logger.WithError(err).Fatal("Import failed")
	}

	report, _ := json.MarshalIndent(result, "", "  ")
	os.Stdout.Write(append(report, '\n'))

	if result.Failed > 0 {
		os.Exit(1)
	}
}
