package multitable

import (
	"context"
	"fmt"
	"time"

	"tsmximport/internal/mapping"
	"tsmximport/internal/source"
	"tsmximport/internal/storage"
)

// RunConfig is everything one import run needs.
type RunConfig struct {
	Store   storage.Config
	Path    string
	Source  source.Options
	Options Options
}

// Runner wires the source reader, the store and the engine together.
type Runner struct {
	// storage-agnostic factory seam
	NewStore func(ctx context.Context, cfg storage.Config) (storage.Store, error)

	// source seam; tests inject an in-memory RowSet
	ReadSource func(ctx context.Context, path string, opts source.Options) (source.RowSet, error)

	Logger Logger
}

// NewDefaultRunner returns a Runner backed by storage.New and source.Open.
func NewDefaultRunner(logger Logger) *Runner {
	return &Runner{
		NewStore:   storage.New,
		ReadSource: source.Open,
		Logger:     logger,
	}
}

// Run reads the spreadsheet, opens the store and imports.
//
// The source is read before connecting so a bad file never holds a
// connection. The store is closed on every exit path.
//
// Errors:
//   - source.ErrSourceRead and storage.ErrConnectionUnavailable are returned
//     before any write.
//   - Otherwise see Engine.Run.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (Report, error) {
	if err := validateRunConfig(&cfg); err != nil {
		return Report{}, err
	}
	logf := logger(r.Logger)

	readStart := time.Now()
	rs, err := r.ReadSource(ctx, cfg.Path, cfg.Source)
	if err != nil {
		return Report{}, err
	}
	logf("stage=read path=%s rows=%d columns=%d duration=%s", cfg.Path, len(rs.Rows), len(rs.Columns), durMS(readStart))
	if len(rs.Unmapped) > 0 {
		logf("stage=read unmapped_headers=%q", rs.Unmapped)
	}

	store, err := r.NewStore(ctx, cfg.Store)
	if err != nil {
		return Report{}, fmt.Errorf("open store kind=%s: %w", cfg.Store.Kind, err)
	}
	defer store.Close()

	engine := &Engine{Store: store, Logger: r.Logger, Options: cfg.Options}
	return engine.Run(ctx, rs)
}

// Truncate empties the six import tables, children first.
func (r *Runner) Truncate(ctx context.Context, cfg storage.Config) error {
	if cfg.Kind == "" {
		return fmt.Errorf("storage kind must be set")
	}
	store, err := r.NewStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store kind=%s: %w", cfg.Kind, err)
	}
	defer store.Close()

	start := time.Now()
	if err := store.Truncate(ctx, mapping.Tables); err != nil {
		return err
	}
	logger(r.Logger)("stage=truncate tables=%d duration=%s", len(mapping.Tables), durMS(start))
	return nil
}

func validateRunConfig(cfg *RunConfig) error {
	if cfg.Path == "" {
		return fmt.Errorf("source path is required")
	}
	if cfg.Store.Kind == "" {
		return fmt.Errorf("storage kind must be set")
	}
	return cfg.Options.Validate()
}
