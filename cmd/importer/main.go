// Command importer loads the customer spreadsheet into the billing database.
//
// Subcommands:
//
//	importer migrate            create the import tables
//	importer run <path|s3://…>  import a spreadsheet
//	importer inspect <path>     dry run without a database
//	importer truncate --yes     empty the import tables
//
// Configuration comes from the environment (see internal/config); flags
// override the few values that change per run.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"tsmximport/internal/config"
	"tsmximport/internal/metrics"
	"tsmximport/internal/migrate"
	"tsmximport/internal/multitable"
	"tsmximport/internal/storage"

	// register all backends with the storage factory.
	_ "tsmximport/internal/storage/all"
)

// backendCloser is the minimal interface used to manage a metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// appDeps are external seams for testability.
//
// When to use:
//   - Unit tests: inject configuration, a fixed clock and run id, and a fake
//     metrics backend.
type appDeps struct {
	LoadConfig     func() (*config.Config, error)
	NewRunner      func(logger multitable.Logger) *multitable.Runner
	Migrate        func(ctx context.Context, cfg storage.Config) ([]migrate.Result, error)
	BackendFactory func(ctx context.Context, cfg *config.Config, runID string) (backendCloser, error)
	Now            func() time.Time
	NewRunID       func() string
}

func defaultDeps() appDeps {
	return appDeps{
		LoadConfig:     func() (*config.Config, error) { return config.Load(config.DefaultEnvFiles) },
		NewRunner:      multitable.NewDefaultRunner,
		Migrate:        migrateUp,
		BackendFactory: newMetricsBackend,
		Now:            time.Now,
		NewRunID:       uuid.NewString,
	}
}

// main is intentionally small: it wires real dependencies and exits with a code.
func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultDeps()))
}

// exitError carries a process exit code out of a cobra RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// runMain executes the command line and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: the import ran but a table failed, or the source/store was unavailable.
//   - 2: configuration or usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, d appDeps) int {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	def := defaultDeps()
	if d.LoadConfig == nil {
		d.LoadConfig = def.LoadConfig
	}
	if d.NewRunner == nil {
		d.NewRunner = def.NewRunner
	}
	if d.Migrate == nil {
		d.Migrate = def.Migrate
	}
	if d.BackendFactory == nil {
		d.BackendFactory = def.BackendFactory
	}
	if d.Now == nil {
		d.Now = def.Now
	}
	if d.NewRunID == nil {
		d.NewRunID = def.NewRunID
	}

	root := newRootCmd(&app{deps: d, stdout: stdout, stderr: stderr})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return 2
	}
	return 0
}

// app is the state shared by every subcommand.
type app struct {
	deps   appDeps
	stdout io.Writer
	stderr io.Writer
}

func migrateUp(ctx context.Context, cfg storage.Config) ([]migrate.Result, error) {
	db, err := migrate.Open(cfg.Kind, cfg.DSN)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return migrate.Up(ctx, db, cfg.Kind)
}
