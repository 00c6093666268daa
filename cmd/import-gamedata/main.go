// Package main copies the YAML lookup tables into PostgreSQL so a lens
// instance can run with gamedata.source=postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/cory-johannsen/palworld-lens/internal/config"
	"github.com/cory-johannsen/palworld-lens/internal/gamedata"
	"github.com/cory-johannsen/palworld-lens/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	sourceDir := flag.String("source", "", "lookup table directory (default: gamedata.dir from config)")
	dryRun := flag.Bool("dry-run", false, "validate the tables without writing them")
	flag.Parse()

	if err := run(*configPath, *sourceDir, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, sourceDir string, dryRun bool) error {
	start := time.Now()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if sourceDir == "" {
		sourceDir = cfg.Gamedata.Dir
	}

	tables, err := gamedata.LoadDir(sourceDir)
	if err != nil {
		return err
	}
	printCounts(tables.Counts())
	if dryRun {
		fmt.Printf("dry run: %s is valid\n", sourceDir)
		return nil
	}

	if err := config.ValidateDatabase(cfg.Database); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Gamedata().Replace(ctx, tables); err != nil {
		return err
	}
	fmt.Printf("import complete in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func printCounts(counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-18s %d\n", name, counts[name])
	}
}
