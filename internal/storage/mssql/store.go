package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"

	"tsmximport/internal/storage"
)

const (
	// SQL Server accepts at most 2100 parameters per request and 1000 rows
	// per table value constructor.
	maxParams = 2000
	maxRows   = 1000
)

const savepoint = "import_row"

// Store implements storage.Store for Microsoft SQL Server.
//
// Upserts use MERGE over a VALUES source, since SQL Server has no
// ON CONFLICT clause. Per-row duplicate skipping uses SAVE TRANSACTION;
// a unique violation (2627/2601) terminates only the statement, so the
// surrounding transaction stays usable after rolling back to the savepoint.
type Store struct {
	db *sql.DB
}

// New opens a single-connection database/sql handle with the "sqlserver" driver.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrConnectionUnavailable, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", storage.ErrConnectionUnavailable, err)
	}
	return newStore(db), nil
}

func newStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	schema, name := splitQualifiedName(table)

	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_SCHEMA = COALESCE(NULLIF(@p1, ''), SCHEMA_NAME()) AND TABLE_NAME = @p2`, schema, name).Scan(&n)
	if err != nil {
		return false, classify(fmt.Errorf("TableExists %s: %w", table, err))
	}
	return n > 0, nil
}

func (s *Store) ColumnsOf(ctx context.Context, table string) (map[string]struct{}, error) {
	schema, name := splitQualifiedName(table)

	rows, err := s.db.QueryContext(ctx, `
SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = COALESCE(NULLIF(@p1, ''), SCHEMA_NAME()) AND TABLE_NAME = @p2`, schema, name)
	if err != nil {
		return nil, classify(fmt.Errorf("ColumnsOf %s: %w", table, err))
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("ColumnsOf: scan %s: %w", table, err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("ColumnsOf: rows %s: %w", table, err))
	}
	return storage.LowerSet(names), nil
}

// SelectKeyValue returns a mapping from normalized key -> surrogate id for the entire table.
//
// It is used to prewarm the natural-key lookups before contracts and contacts are mapped.
func (s *Store) SelectKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error) {
	if table == "" || keyColumn == "" || valueColumn == "" {
		return nil, fmt.Errorf("SelectKeyValue: table, keyColumn, valueColumn required")
	}

	q := fmt.Sprintf("SELECT %s, %s FROM %s", mssqlIdent(keyColumn), mssqlIdent(valueColumn), mssqlTableIdent(table))
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
		return nil, fmt.Errorf("SelectRows: columns required")
	}

	q := fmt.Sprintf("SELECT %s FROM %s", joinIdents(columns), mssqlTableIdent(table))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, classify(fmt.Errorf("SelectRows: query %s: %w", table, err))
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(columns))
		dests := make([]any, len(columns))
		for i := range vals {
			dests[i] = &vals[i]
		}
		if err := rows.Scan(dests...); err != nil {
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("begin: %w", err))
	}
	return &mssqlTx{tx: tx}, nil
}

// Truncate deletes every row of tables, children first. TRUNCATE TABLE is
// refused on tables referenced by a foreign key, so DELETE is used instead.
func (s *Store) Truncate(ctx context.Context, tables []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("truncate: begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+mssqlTableIdent(tables[i])); err != nil {
			return classify(fmt.Errorf("truncate %s: %w", tables[i], err))
		}
	}
	return classify(tx.Commit())
}

type mssqlTx struct {
	tx *sql.Tx
}

func (t *mssqlTx) Insert(ctx context.Context, spec storage.InsertSpec) (int64, error) {
	if len(spec.Rows) == 0 {
		return 0, nil
	}
	if len(spec.Columns) == 0 {
		return 0, fmt.Errorf("insert %s: no columns", spec.Table)
	}

	limit := maxParams
	if byRows := maxRows * len(spec.Columns); byRows < limit {
		limit = byRows
	}

	var total int64
	for _, chunk := range storage.ChunkRows(spec.Rows, len(spec.Columns), limit) {
		part := spec
		part.Rows = chunk

		var q string
		var args []any
		if spec.ConflictKey == "" {
			q, args = buildInsertSQL(part)
		} else {
			q, args = buildMergeSQL(part)
		}
		res, err := t.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, classify(fmt.Errorf("insert %s: %w", spec.Table, err))
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (t *mssqlTx) InsertSkippingDuplicate(ctx context.Context, table string, columns []string, row []any) (bool, error) {
	if _, err := t.tx.ExecContext(ctx, "SAVE TRANSACTION "+savepoint); err != nil {
		return false, classify(fmt.Errorf("save transaction: %w", err))
	}

	q, args := buildInsertSQL(storage.InsertSpec{Table: table, Columns: columns, Rows: [][]any{row}})
	if _, err := t.tx.ExecContext(ctx, q, args...); err != nil {
		cerr := classify(err)
		if !errors.Is(cerr, storage.ErrConstraintViolation) {
			return false, fmt.Errorf("insert %s: %w", table, cerr)
		}
		if _, rerr := t.tx.ExecContext(ctx, "ROLLBACK TRANSACTION "+savepoint); rerr != nil {
			return false, classify(fmt.Errorf("rollback to savepoint: %w", rerr))
		}
		return false, nil
	}
	return true, nil
}

func (t *mssqlTx) Commit(ctx context.Context) error {
	return classify(t.tx.Commit())
}

func (t *mssqlTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return classify(err)
	}
	return nil
}

// buildInsertSQL renders a multi-row INSERT with @pN placeholders.
func buildInsertSQL(spec storage.InsertSpec) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(spec.Table))
	b.WriteString(" (")
	b.WriteString(joinIdents(spec.Columns))
	b.WriteString(") VALUES ")
	args := writeValues(&b, spec)
	return b.String(), args
}

// buildMergeSQL renders the upsert form:
//
//	MERGE INTO [t] WITH (HOLDLOCK) AS tgt
//	USING (VALUES (...), (...)) AS src ([a], [b])
//	ON tgt.[key] = src.[key]
//	WHEN MATCHED THEN UPDATE SET tgt.[b] = src.[b]
//	WHEN NOT MATCHED THEN INSERT ([a], [b]) VALUES (src.[a], src.[b]);
//
// The WHEN MATCHED arm is omitted when there is nothing to update.
// MERGE fails if the source holds the same key twice; callers dedupe first.
func buildMergeSQL(spec storage.InsertSpec) (string, []any) {
	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(mssqlTableIdent(spec.Table))
	b.WriteString(" WITH (HOLDLOCK) AS tgt USING (VALUES ")
	args := writeValues(&b, spec)
	b.WriteString(") AS src (")
	b.WriteString(joinIdents(spec.Columns))
	b.WriteString(") ON tgt.")
	b.WriteString(mssqlIdent(spec.ConflictKey))
	b.WriteString(" = src.")
	b.WriteString(mssqlIdent(spec.ConflictKey))

	if len(spec.UpdateColumns) > 0 {
		b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		for i, c := range spec.UpdateColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("tgt.")
			b.WriteString(mssqlIdent(c))
			b.WriteString(" = src.")
			b.WriteString(mssqlIdent(c))
		}
	}

	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(joinIdents(spec.Columns))
	b.WriteString(") VALUES (")
	for i, c := range spec.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("src.")
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(");")
	return b.String(), args
}

func writeValues(b *strings.Builder, spec storage.InsertSpec) []any {
	args := make([]any, 0, len(spec.Rows)*len(spec.Columns))
	p := 1
	for i, row := range spec.Rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range spec.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return args
}

// classify maps driver errors onto the storage error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var me mssqldb.Error
	if errors.As(err, &me) {
		switch me.Number {
		case 2627, 2601: // unique constraint, unique index
			return fmt.Errorf("%w: %w", storage.ErrConstraintViolation, err)
		case 208, 207: // invalid object name, invalid column name
			return fmt.Errorf("%w: %w", storage.ErrSchemaMismatch, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", storage.ErrConnectionUnavailable, err)
	}
	return err
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.client" -> [dbo].[client]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func joinIdents(cols []string) string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, mssqlIdent(c))
	}
	return strings.Join(out, ", ")
}

func splitQualifiedName(name string) (schema, table string) {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, '.'); i > 0 && strings.Count(name, ".") == 1 {
		return name[:i], name[i+1:]
	}
	return "", name
}
