// Package multitable runs one import: it maps a spreadsheet onto the six
// target tables and writes them in dependency order.
//
// Plan:
//   - lookups: status_lookup and contact_type_lookup, insert-if-missing
//   - parents: plan (upsert on description), client (upsert on document)
//   - lookups are read back as natural key -> id maps
//   - children: contract and contact, filtered against a snapshot of the
//     keys already stored, then inserted
//
// Each table is written in its own transaction. A failed table is rolled
// back, logged and recorded in the Report; later tables still run. Only a lost
// connection stops the run.
package multitable

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tsmximport/internal/dedupe"
	"tsmximport/internal/mapping"
	"tsmximport/internal/metrics"
	"tsmximport/internal/source"
	"tsmximport/internal/storage"
)

// Logger is the minimal logging interface used by the engine.
// *log.Logger and *logrus.Logger satisfy it.
type Logger interface {
	Printf(format string, v ...any)
}

// Engine imports one RowSet into a Store.
type Engine struct {
	Store   storage.Store
	Logger  Logger
	Options Options
}

// TableReport is the outcome of one table.
type TableReport struct {
	Table string

	// Candidates is the number of rows the mapper produced for the table.
	Candidates int
	// Dropped rows lacked a key or a resolvable foreign key.
	Dropped int
	// Duplicates repeated a key in the batch or, for contract and contact,
	// matched a key already stored.
	Duplicates int

	Written int64
	Skipped int64

	Err error
}

// Report is the outcome of a run.
type Report struct {
	Rows     int
	Tables   []TableReport
	Duration time.Duration
}

// Failed reports whether any table failed.
func (r Report) Failed() bool {
	for _, t := range r.Tables {
		if t.Err != nil {
			return true
		}
	}
	return false
}

// Table returns the report for table, or false when it was never reached.
func (r Report) Table(table string) (TableReport, bool) {
	for _, t := range r.Tables {
		if t.Table == table {
			return t, true
		}
	}
	return TableReport{}, false
}

// Run imports rs.
//
// Errors:
//   - Returns an error only when the run cannot continue: a lost connection or
//     a cancelled context. Per-table failures are in Report.Tables[i].Err.
func (e *Engine) Run(ctx context.Context, rs source.RowSet) (Report, error) {
	if e.Store == nil {
		return Report{}, fmt.Errorf("engine: Store is required")
	}
	opts := e.Options
	if err := opts.Validate(); err != nil {
		return Report{}, err
	}

	logf := e.logger()
	runStart := time.Now()
	var rep Report

	records := mapping.Clean(rs)
	rep.Rows = len(records)
	metrics.RecordRows("source", "read", int64(len(records)))
	logf("stage=normalize rows=%d unmapped_headers=%d duration=%s", len(records), len(rs.Unmapped), durMS(runStart))

	x := &Executor{Store: e.Store, Logger: e.Logger}

	// record appends tr and stops the run once the store is gone.
	record := func(tr TableReport) error {
		rep.Tables = append(rep.Tables, tr)
		if tr.Err == nil {
			return nil
		}
		logf("stage=write table=%s error=%q", tr.Table, tr.Err)
		if errors.Is(tr.Err, storage.ErrConnectionUnavailable) || ctx.Err() != nil {
			return tr.Err
		}
		return nil
	}
	finish := func(err error) (Report, error) {
		rep.Duration = time.Since(runStart)
		logf("stage=done tables=%d failed=%t duration=%s", len(rep.Tables), rep.Failed(), durMS(runStart))
		return rep, err
	}

	plans, pc := mapping.Plans(records)
	clients, cc := mapping.Clients(records)

	// Lookup tables only gain labels; existing ones are left alone.
	parents := []parentStep{
		{table: mapping.TableStatus, set: mapping.Statuses(records), key: mapping.ColStatus, update: []string{}},
		{table: mapping.TableContactType, set: mapping.ContactTypes(), key: mapping.ColType, update: []string{}},
		{table: mapping.TablePlan, set: plans, counts: pc, key: mapping.ColDescription, update: planUpdateColumns(opts.PlanConflict)},
		{table: mapping.TableClient, set: clients, counts: cc, key: mapping.ColDocument},
	}
	for _, p := range parents {
		tr := e.write(ctx, x, p.set, p.counts, WriteRequest{
			Table:         p.table,
			ConflictKey:   p.key,
			UpdateColumns: p.update,
			Policy:        UpsertOnKey,
		}, nil)
		if err := record(tr); err != nil {
			return finish(err)
		}
	}

	lkStart := time.Now()
	lk, err := e.loadLookups(ctx, opts)
	metrics.RecordStep("load_lookups", lkStart, err)
	if err != nil {
		err = fmt.Errorf("load lookups: %w", err)
		for _, table := range []string{mapping.TableContract, mapping.TableContact} {
			if ferr := record(TableReport{Table: table, Err: err}); ferr != nil {
				return finish(ferr)
			}
		}
		return finish(nil)
	}
	logf("stage=load_lookups clients=%d plans=%d statuses=%d contact_types=%d duration=%s",
		len(lk.Clients), len(lk.Plans), len(lk.Statuses), len(lk.ContactTypes), durMS(lkStart))

	contracts, kc := mapping.Contracts(records, lk)
	tr := e.write(ctx, x, contracts, kc, WriteRequest{
		Table:  mapping.TableContract,
		Policy: RejectBatchOnError,
	}, mapping.ContractKey)
	if err := record(tr); err != nil {
		return finish(err)
	}

	contactPolicy := RejectBatchOnError
	if opts.ContactPolicy == ContactPerRow {
		contactPolicy = SkipOnUniqueViolationPerRow
	}
	contacts, ac := mapping.Contacts(records, lk)
	tr = e.write(ctx, x, contacts, ac, WriteRequest{
		Table:  mapping.TableContact,
		Policy: contactPolicy,
	}, mapping.ContactKey)
	if err := record(tr); err != nil {
		return finish(err)
	}

	return finish(nil)
}

// parentStep is an upsert of a table other tables reference by id.
type parentStep struct {
	table  string
	set    storage.RecordSet
	counts mapping.Counts
	key    string
	update []string
}

// write runs one table step. When snapshotKey is set, candidates are first
// filtered against the keys already stored in the table.
func (e *Engine) write(
	ctx context.Context,
	x *Executor,
	set storage.RecordSet,
	c mapping.Counts,
	req WriteRequest,
	snapshotKey []string,
) TableReport {
	logf := e.logger()
	start := time.Now()
	table := req.Table

	tr := TableReport{Table: table, Candidates: set.Len(), Dropped: c.Dropped, Duplicates: c.Duplicates}
	defer func() {
		metrics.RecordStep("write_"+table, start, tr.Err)
		metrics.RecordRows(table, "candidate", int64(tr.Candidates))
		metrics.RecordRows(table, "dropped", int64(tr.Dropped))
		metrics.RecordRows(table, "duplicate", int64(tr.Duplicates))
		metrics.RecordRows(table, "written", tr.Written)
		metrics.RecordRows(table, "skipped", tr.Skipped)
	}()

	if snapshotKey != nil {
		kept, removed, err := e.filterExisting(ctx, table, set, snapshotKey)
		if err != nil {
			tr.Err = err
			return tr
		}
		tr.Duplicates += removed
		set = kept
		logf("stage=dedupe table=%s candidates=%d existing_or_repeated=%d", table, tr.Candidates, removed)
	}

	req.Records = set
	res, err := x.Write(ctx, req)
	if err != nil {
		tr.Err = err
		return tr
	}
	tr.Written, tr.Skipped = res.Written, res.Skipped
	logf("stage=table table=%s candidates=%d dropped=%d duplicates=%d written=%d skipped=%d duration=%s",
		table, tr.Candidates, tr.Dropped, tr.Duplicates, tr.Written, tr.Skipped, durMS(start))
	return tr
}

// filterExisting snapshots the stored keys of table and removes candidates
// whose key is already stored or repeated in the batch.
//
// The snapshot is taken before the write transaction opens; the store holds
// a single connection, so it cannot be read while a transaction is open.
func (e *Engine) filterExisting(ctx context.Context, table string, set storage.RecordSet, key []string) (storage.RecordSet, int, error) {
	if set.Len() == 0 {
		return set, 0, nil
	}
	ok, err := e.Store.TableExists(ctx, table)
	if err != nil {
		return storage.RecordSet{}, 0, err
	}
	if !ok {
		return storage.RecordSet{}, 0, fmt.Errorf("%w: table %s does not exist", storage.ErrSchemaMismatch, table)
	}
	rows, err := e.Store.SelectRows(ctx, table, key)
	if err != nil {
		return storage.RecordSet{}, 0, fmt.Errorf("snapshot %s: %w", table, err)
	}
	return dedupe.Filter(set, key, dedupe.KeySetFromRows(rows))
}

func (e *Engine) loadLookups(ctx context.Context, opts Options) (mapping.Lookups, error) {
	lk := mapping.Lookups{StatusFallbackID: opts.StatusFallbackID}
	var err error

	if lk.Clients, err = e.Store.SelectKeyValue(ctx, mapping.TableClient, mapping.ColDocument, mapping.ColID); err != nil {
		return lk, err
	}
	if lk.Plans, err = e.Store.SelectKeyValue(ctx, mapping.TablePlan, mapping.ColDescription, mapping.ColID); err != nil {
		return lk, err
	}
	if lk.Statuses, err = e.Store.SelectKeyValue(ctx, mapping.TableStatus, mapping.ColStatus, mapping.ColID); err != nil {
		return lk, err
	}
	if lk.ContactTypes, err = e.Store.SelectKeyValue(ctx, mapping.TableContactType, mapping.ColType, mapping.ColID); err != nil {
		return lk, err
	}
	return lk, nil
}

func planUpdateColumns(p PlanConflict) []string {
	if p == PlanKeep {
		return []string{}
	}
	return []string{mapping.ColValue}
}

func (e *Engine) logger() func(format string, v ...any) {
	return logger(e.Logger)
}

func logger(l Logger) func(format string, v ...any) {
	if l == nil {
		return log.New(discardWriter{}, "", 0).Printf
	}
	return l.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }
