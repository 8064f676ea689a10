package multitable

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tsmximport/internal/storage"
)

// WritePolicy selects how Executor.Write handles rows that collide with
// existing data.
type WritePolicy int

const (
	// RejectBatchOnError writes the whole record set in one bulk insert. Any
	// failure, including a uniqueness violation, rolls the call back.
	RejectBatchOnError WritePolicy = iota

	// UpsertOnKey inserts and, on a conflict over ConflictKey, updates the
	// update columns (or does nothing when none remain).
	UpsertOnKey

	// SkipOnUniqueViolationPerRow inserts one row at a time inside a savepoint.
	// Rows rejected by a uniqueness constraint are skipped and counted.
	SkipOnUniqueViolationPerRow
)

func (p WritePolicy) String() string {
	switch p {
	case RejectBatchOnError:
		return "reject_batch"
	case UpsertOnKey:
		return "upsert"
	case SkipOnUniqueViolationPerRow:
		return "skip_per_row"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// WriteRequest is one table write.
type WriteRequest struct {
	Table   string
	Records storage.RecordSet

	// ConflictKey is required for UpsertOnKey and ignored otherwise.
	ConflictKey string

	// UpdateColumns restricts which columns an upsert refreshes. Nil means
	// every resolved column except ConflictKey; an explicit empty slice
	// means do nothing on conflict.
	UpdateColumns []string

	Policy WritePolicy
}

// WriteResult counts what a write did.
type WriteResult struct {
	Written int64
	Skipped int64
}

// Executor writes record sets to a Store, one transaction per call.
type Executor struct {
	Store  storage.Store
	Logger Logger
}

// Write reconciles req.Records with the live table and writes them under
// req.Policy.
//
// Columns of the record set that the table does not have are dropped. When
// the table is missing, or shares no column with the record set, Write
// returns storage.ErrSchemaMismatch without writing anything.
//
// Errors:
//   - storage.ErrSchemaMismatch: missing table, no shared columns, or a
//     conflict key the table does not have.
//   - storage.ErrConstraintViolation: bulk policies only.
//   - storage.ErrConnectionUnavailable: the store went away.
func (x *Executor) Write(ctx context.Context, req WriteRequest) (WriteResult, error) {
	if x.Store == nil {
		return WriteResult{}, fmt.Errorf("executor: Store is required")
	}
	if req.Table == "" {
		return WriteResult{}, fmt.Errorf("executor: table is empty")
	}
	logf := logger(x.Logger)
	start := time.Now()

	ok, err := x.Store.TableExists(ctx, req.Table)
	if err != nil {
		return WriteResult{}, err
	}
	if !ok {
		return WriteResult{}, fmt.Errorf("%w: table %s does not exist", storage.ErrSchemaMismatch, req.Table)
	}
	live, err := x.Store.ColumnsOf(ctx, req.Table)
	if err != nil {
		return WriteResult{}, err
	}

	source, columns := resolveColumns(req.Records.Columns, live)
	if len(columns) == 0 {
		return WriteResult{}, fmt.Errorf("%w: table %s shares no column with %v",
			storage.ErrSchemaMismatch, req.Table, req.Records.Columns)
	}
	if dropped := len(req.Records.Columns) - len(columns); dropped > 0 {
		logf("stage=write table=%s dropped_columns=%d", req.Table, dropped)
	}

	var conflictKey string
	var update []string
	if req.Policy == UpsertOnKey {
		conflictKey = strings.ToLower(req.ConflictKey)
		if !contains(columns, conflictKey) {
			return WriteResult{}, fmt.Errorf("%w: conflict key %q not among resolved columns of %s",
				storage.ErrSchemaMismatch, req.ConflictKey, req.Table)
		}
		update = updateColumns(columns, conflictKey, req.UpdateColumns)
	}

	if req.Records.Len() == 0 {
		logf("stage=write table=%s policy=%s rows=0 duration=%s", req.Table, req.Policy, durMS(start))
		return WriteResult{}, nil
	}
	set := req.Records.Project(source)
	set.Columns = columns

	tx, err := x.Store.Begin(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var res WriteResult
	switch req.Policy {
	case SkipOnUniqueViolationPerRow:
		for _, row := range set.Rows {
			inserted, err := tx.InsertSkippingDuplicate(ctx, req.Table, set.Columns, row)
			if err != nil {
				return WriteResult{}, err
			}
			if inserted {
				res.Written++
			} else {
				res.Skipped++
			}
		}
	case RejectBatchOnError, UpsertOnKey:
		n, err := tx.Insert(ctx, storage.InsertSpec{
			Table:         req.Table,
			Columns:       set.Columns,
			Rows:          set.Rows,
			ConflictKey:   conflictKey,
			UpdateColumns: update,
		})
		if err != nil {
			return WriteResult{}, err
		}
		res.Written = n
	default:
		return WriteResult{}, fmt.Errorf("executor: unknown policy %s", req.Policy)
	}

	if err := tx.Commit(ctx); err != nil {
		return WriteResult{}, err
	}
	logf("stage=write table=%s policy=%s rows=%d written=%d skipped=%d duration=%s",
		req.Table, req.Policy, set.Len(), res.Written, res.Skipped, durMS(start))
	return res, nil
}

// resolveColumns returns the record columns present in live, in record
// order: as named in the record set and lowercased.
func resolveColumns(recordColumns []string, live map[string]struct{}) (source, lower []string) {
	for _, c := range recordColumns {
		lc := strings.ToLower(c)
		if _, ok := live[lc]; ok && !contains(lower, lc) {
			source = append(source, c)
			lower = append(lower, lc)
		}
	}
	return source, lower
}

func updateColumns(columns []string, key string, explicit []string) []string {
	if explicit == nil {
		out := make([]string, 0, len(columns))
		for _, c := range columns {
			if c != key {
				out = append(out, c)
			}
		}
		return out
	}
	out := make([]string, 0, len(explicit))
	for _, c := range explicit {
		lc := strings.ToLower(c)
		if lc != key && contains(columns, lc) && !contains(out, lc) {
			out = append(out, lc)
		}
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
