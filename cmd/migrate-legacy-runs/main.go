package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/slr_backend/config"
	"bitbucket.org/mmdatafocus/slr_backend/models"
	"bitbucket.org/mmdatafocus/slr_backend/utils"
)

// Registers run directories that predate the registry as completed runs.
// A directory qualifies when it holds at least the initial result and
// employee summary snapshots; everything else is skipped.
func main() {
	dryRun := flag.Bool("dry-run", false, "List directories that would be registered without writing anything.")
	dataRoot := flag.String("data-root", "", "Optional: override RUNS_DATA_ROOT.")
	flag.Parse()

	if strings.TrimSpace(*dataRoot) != "" {
		os.Setenv("RUNS_DATA_ROOT", strings.TrimSpace(*dataRoot))
	}

	ctx := context.Background()
	// Explicit DB connect (config no longer connects DB in init()).
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	// Ensure schema is up-to-date (creates calculation_runs if missing).
	models.MigrateTable()

	root := models.RunsDataRoot()
	entries, err := os.ReadDir(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read data root %s: %v\n", root, err)
		os.Exit(1)
	}

	registered := 0
	skipped := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := entry.Name()

		candidate := &models.CalculationRun{RunId: dir, DataDirectory: dir}
		if !candidate.IsDataAvailable() {
			fmt.Printf("skip %s: required snapshots missing\n", dir)
			skipped++
			continue
		}

		existing, err := models.GetCalculationRun(ctx, dir)
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			fmt.Fprintf(os.Stderr, "failed to look up %s: %v\n", dir, err)
			os.Exit(1)
		}
		if existing != nil {
			skipped++
			continue
		}

		if *dryRun {
			fmt.Printf("would register %s\n", dir)
			registered++
			continue
		}

		run, err := models.CreateCalculationRun(ctx, &models.NewCalculationRun{
			RunId:         dir,
			DataDirectory: dir,
			PeriodString:  dir,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to register %s: %v\n", dir, err)
			os.Exit(1)
		}
		if _, err := models.MarkRunCompleted(ctx, run.RunId); err != nil {
			fmt.Fprintf(os.Stderr, "failed to complete %s: %v\n", dir, err)
			os.Exit(1)
		}
		fmt.Printf("registered %s\n", dir)
		registered++
	}

	fmt.Printf("done: %d registered, %d skipped\n", registered, skipped)
}
