package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tsmximport/internal/storage"
)

// maxParams keeps each statement under SQLITE_MAX_VARIABLE_NUMBER.
const maxParams = 10000

const savepoint = "import_row"

// Store implements storage.Store for SQLite.
//
// Key design points vs Postgres:
//   - There is no information_schema; existence and columns come from
//     sqlite_master and pragma_table_info.
//   - Foreign keys are off by default in SQLite and are switched on per
//     connection, which is why the handle is pinned to one connection.
//   - Truncate is a DELETE per table in reverse dependency order.
type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sqlx.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrConnectionUnavailable, err)
	}
	db.SetMaxOpenConns(1)
	// ":memory:" databases live as long as their connection.
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", storage.ErrConnectionUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: enable foreign keys: %w", storage.ErrConnectionUnavailable, err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for schema bootstrap and tests.
func (s *Store) DB() *sql.DB { return s.db.DB }

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
	if err != nil {
		return false, classify(fmt.Errorf("TableExists %s: %w", table, err))
	}
	return n > 0, nil
}

func (s *Store) ColumnsOf(ctx context.Context, table string) (map[string]struct{}, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names, `SELECT name FROM pragma_table_info(?)`, table); err != nil {
		return nil, classify(fmt.Errorf("ColumnsOf %s: %w", table, err))
	}
	return storage.LowerSet(names), nil
}

// SelectKeyValue returns a mapping from normalized key -> surrogate id for the whole table.
func (s *Store) SelectKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error) {
	if table == "" || keyColumn == "" || valueColumn == "" {
		return nil, fmt.Errorf("SelectKeyValue: table, keyColumn, valueColumn are required")
	}

	q := fmt.Sprintf(`SELECT %s, %s FROM %s`, sqlIdent(keyColumn), sqlIdent(valueColumn), sqlIdent(table))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, classify(fmt.Errorf("SelectKeyValue: query %s: %w", table, err))
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var k any
		var id int64
		if err := rows.Scan(&k, &id); err != nil {
			return nil, fmt.Errorf("SelectKeyValue: scan %s: %w", table, err)
		}
		out[storage.NormalizeKey(k)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("SelectKeyValue: rows %s: %w", table, err))
	}
	return out, nil
}

func (s *Store) SelectRows(ctx context.Context, table string, columns []string) ([][]any, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("SelectRows: columns are required")
	}

	q := fmt.Sprintf(`SELECT %s FROM %s`, joinIdents(columns), sqlIdent(table))
	rows, err := s.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, classify(fmt.Errorf("SelectRows: query %s: %w", table, err))
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("SelectRows: scan %s: %w", table, err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("SelectRows: rows %s: %w", table, err))
	}
	return out, nil
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("begin: %w", err))
	}
	return &sqliteTx{tx: tx}, nil
}

// Truncate deletes every row of tables, children first, in one transaction.
func (s *Store) Truncate(ctx context.Context, tables []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("truncate: begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqlIdent(tables[i])); err != nil {
			return classify(fmt.Errorf("truncate %s: %w", tables[i], err))
		}
	}
	return classify(tx.Commit())
}

type sqliteTx struct {
	tx *sqlx.Tx
}

func (t *sqliteTx) Insert(ctx context.Context, spec storage.InsertSpec) (int64, error) {
	if len(spec.Rows) == 0 {
		return 0, nil
	}
	if len(spec.Columns) == 0 {
		return 0, fmt.Errorf("insert %s: no columns", spec.Table)
	}

	var total int64
	for _, chunk := range storage.ChunkRows(spec.Rows, len(spec.Columns), maxParams) {
		part := spec
		part.Rows = chunk

		q, args := buildInsertSQL(part)
		res, err := t.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, classify(fmt.Errorf("insert %s: %w", spec.Table, err))
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (t *sqliteTx) InsertSkippingDuplicate(ctx context.Context, table string, columns []string, row []any) (bool, error) {
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return false, classify(fmt.Errorf("savepoint: %w", err))
	}

	q, args := buildInsertSQL(storage.InsertSpec{Table: table, Columns: columns, Rows: [][]any{row}})
	if _, err := t.tx.ExecContext(ctx, q, args...); err != nil {
		cerr := classify(err)
		if !errors.Is(cerr, storage.ErrConstraintViolation) {
			return false, fmt.Errorf("insert %s: %w", table, cerr)
		}
		if _, rerr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rerr != nil {
			return false, classify(fmt.Errorf("rollback to savepoint: %w", rerr))
		}
		// ROLLBACK TO leaves the savepoint on the stack.
		if _, rerr := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); rerr != nil {
			return false, classify(fmt.Errorf("release savepoint: %w", rerr))
		}
		return false, nil
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return false, classify(fmt.Errorf("release savepoint: %w", err))
	}
	return true, nil
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	return classify(t.tx.Commit())
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return classify(err)
	}
	return nil
}

// buildInsertSQL constructs a multi-row INSERT with "?" placeholders.
//
// SQLite (3.24+) accepts the same ON CONFLICT (col) DO UPDATE / DO NOTHING
// upsert clause as Postgres; the incoming row is referenced as "excluded".
func buildInsertSQL(spec storage.InsertSpec) (string, []any) {
	placeholders := "(" + strings.TrimRight(strings.Repeat("?, ", len(spec.Columns)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(spec.Table))
	b.WriteString(" (")
	b.WriteString(joinIdents(spec.Columns))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(spec.Rows)*len(spec.Columns))
	for i, row := range spec.Rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row[:len(spec.Columns)]...)
	}

	if spec.ConflictKey != "" {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(sqlIdent(spec.ConflictKey))
		b.WriteString(")")
		if len(spec.UpdateColumns) == 0 {
			b.WriteString(" DO NOTHING")
		} else {
			b.WriteString(" DO UPDATE SET ")
			for i, c := range spec.UpdateColumns {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(sqlIdent(c))
				b.WriteString(" = excluded.")
				b.WriteString(sqlIdent(c))
			}
		}
	}
	return b.String(), args
}

// classify maps driver errors onto the storage error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", storage.ErrConstraintViolation, err)
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %w", storage.ErrConstraintViolation, err)
	}
	if strings.Contains(msg, "no such table") || strings.Contains(msg, "has no column named") {
		return fmt.Errorf("%w: %w", storage.ErrSchemaMismatch, err)
	}
	return err
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func joinIdents(cols []string) string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, sqlIdent(c))
	}
	return strings.Join(out, ", ")
}
