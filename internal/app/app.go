// Package app assembles the parse pipeline from configuration: lookup tables,
// transform scripts, entity schemas and the loader that uses them.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/palworld-lens/internal/config"
	"github.com/cory-johannsen/palworld-lens/internal/gamedata"
	"github.com/cory-johannsen/palworld-lens/internal/gvas"
	"github.com/cory-johannsen/palworld-lens/internal/loader"
	"github.com/cory-johannsen/palworld-lens/internal/schema"
	"github.com/cory-johannsen/palworld-lens/internal/scripting"
	"github.com/cory-johannsen/palworld-lens/internal/storage/postgres"
)

// Pipeline holds everything a loader needs that is fixed for the process
// lifetime.
type Pipeline struct {
	Scripts *scripting.Manager
	Schemas *schema.Set
	Tables  *gamedata.Tables
	// Pool is set only when lookup tables come from PostgreSQL.
	Pool *postgres.Pool
}

// Build loads the lookup tables, the transform scripts and the schemas named
// by cfg.
//
// Precondition: cfg must have passed Validate.
// Postcondition: Returns a Pipeline whose Schemas resolve every transform, or
// an error. The caller must Close the Pipeline.
func Build(ctx context.Context, logger *zap.Logger, cfg config.Config) (*Pipeline, error) {
	p := &Pipeline{}

	var src gamedata.Source = gamedata.DirSource{Dir: cfg.Gamedata.Dir}
	if cfg.Gamedata.Source == config.GamedataPostgres {
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to gamedata store: %w", err)
		}
		p.Pool = pool
		src = pool.Gamedata()
	}
	tables, err := src.LoadTables(ctx)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("loading lookup tables: %w", err)
	}
	p.Tables = tables
	logger.Info("lookup tables loaded",
		zap.String("source", cfg.Gamedata.Source),
		zap.Any("counts", tables.Counts()),
	)

	p.Scripts = scripting.NewManager(logger)
	p.Scripts.Lookup = tables.Lookup
	if cfg.Schema.ScriptsDir != "" {
		if err := p.Scripts.Load(cfg.Schema.ScriptsDir, cfg.Schema.InstructionLimit); err != nil {
			p.Close()
			return nil, fmt.Errorf("loading transform scripts: %w", err)
		}
	}

	schemas, err := schema.Load(cfg.Schema.Dir, schema.NewTransforms(p.Scripts))
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Schemas = schemas
	return p, nil
}

// NewLoader creates a loader over the pipeline with the save layout of cfg.
//
// Precondition: p must come from Build.
func (p *Pipeline) NewLoader(logger *zap.Logger, cfg config.SaveConfig) (*loader.Loader, error) {
	decode, err := DecodeOptions(cfg)
	if err != nil {
		return nil, err
	}
	return loader.New(logger, p.Schemas, p.Tables, loader.Options{
		LevelFile:     cfg.LevelFile,
		MetaFile:      cfg.MetaFile,
		PlayersDir:    cfg.PlayersDir,
		PlayerWorkers: cfg.PlayerWorkers,
		Decode:        decode,
	})
}

// DecodeOptions returns the Palworld decode options with the configured extra
// type hints layered over the built-in ones.
func DecodeOptions(cfg config.SaveConfig) (gvas.Options, error) {
	opts := gvas.PalworldOptions()
	opts.HintFallback = cfg.HintFallback
	if cfg.HintsFile != "" {
		extra, err := gvas.LoadTypeHintsFile(cfg.HintsFile)
		if err != nil {
			return gvas.Options{}, err
		}
		opts.Hints = opts.Hints.Merge(extra)
	}
	return opts, nil
}

// Close releases the script VM and the database pool.
func (p *Pipeline) Close() {
	if p.Scripts != nil {
		p.Scripts.Close()
	}
	if p.Pool != nil {
		p.Pool.Close()
	}
}
