package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tsmximport/internal/storage"
)

// maxParams stays well below Postgres's 65535 bind parameter limit.
const maxParams = 30000

const savepoint = "import_row"

/*
Store implements storage.Store for Postgres.

It provides:
  - schema introspection through information_schema
  - natural-key lookups and composite-key snapshots
  - bulk INSERT ... ON CONFLICT (key) DO UPDATE / DO NOTHING
  - per-row inserts guarded by SAVEPOINT for duplicate skipping
*/
type Store struct {
	pool *pgxpool.Pool
}

// New opens a single-connection pool and pings it.
//
// Errors:
//   - Returns an error wrapping storage.ErrConnectionUnavailable when the DSN
//     cannot be parsed or the server cannot be reached.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dsn: %w", storage.ErrConnectionUnavailable, err)
	}
	// One exclusively-owned connection per run.
	pcfg.MaxConns = 1
	pcfg.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrConnectionUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", storage.ErrConnectionUnavailable, err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	schema, name := splitQualifiedName(table)

	var ok bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM information_schema.tables
  WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2
)`, schema, name).Scan(&ok)
	if err != nil {
		return false, classify(fmt.Errorf("TableExists %s: %w", table, err))
	}
	return ok, nil
}

func (s *Store) ColumnsOf(ctx context.Context, table string) (map[string]struct{}, error) {
	schema, name := splitQualifiedName(table)

	rows, err := s.pool.Query(ctx, `
SELECT column_name FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2`, schema, name)
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

// SelectKeyValue returns a mapping from normalized key -> surrogate id for the whole table.
//
// The returned map key is storage.NormalizeKey(original_key_value) so callers can
// reliably match string/int/etc key inputs.
func (s *Store) SelectKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error) {
	if table == "" || keyColumn == "" || valueColumn == "" {
		return nil, fmt.Errorf("SelectKeyValue: table, keyColumn, valueColumn are required")
	}

	q := fmt.Sprintf(`SELECT %s, %s FROM %s`, pgIdent(keyColumn), pgIdent(valueColumn), qualifiedIdent(table))

	rows, err := s.pool.Query(ctx, q)
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

	q := fmt.Sprintf(`SELECT %s FROM %s`, joinIdents(columns), qualifiedIdent(table))
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, classify(fmt.Errorf("SelectRows: query %s: %w", table, err))
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		// pgx requires pointer destinations for a dynamic column list.
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, classify(fmt.Errorf("begin: %w", err))
	}
	return &pgTx{tx: tx}, nil
}

// Truncate empties all tables with a single TRUNCATE ... CASCADE.
func (s *Store) Truncate(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, qualifiedIdent(t))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("truncate: begin: %w", err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+strings.Join(names, ", ")+" CASCADE"); err != nil {
		return classify(fmt.Errorf("truncate: %w", err))
	}
	return classify(tx.Commit(ctx))
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Insert(ctx context.Context, spec storage.InsertSpec) (int64, error) {
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

		sql, args := buildInsertSQL(part)
		cmd, err := t.tx.Exec(ctx, sql, args...)
		if err != nil {
			return total, classify(fmt.Errorf("insert %s: %w", spec.Table, err))
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

func (t *pgTx) InsertSkippingDuplicate(ctx context.Context, table string, columns []string, row []any) (bool, error) {
	if _, err := t.tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
		return false, classify(fmt.Errorf("savepoint: %w", err))
	}

	sql, args := buildInsertSQL(storage.InsertSpec{Table: table, Columns: columns, Rows: [][]any{row}})
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		cerr := classify(err)
		if !errors.Is(cerr, storage.ErrConstraintViolation) {
			return false, fmt.Errorf("insert %s: %w", table, cerr)
		}
		// The failed statement aborted the transaction; rewind to the savepoint.
		if _, rerr := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rerr != nil {
			return false, classify(fmt.Errorf("rollback to savepoint: %w", rerr))
		}
		if _, rerr := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); rerr != nil {
			return false, classify(fmt.Errorf("release savepoint: %w", rerr))
		}
		return false, nil
	}

	if _, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return false, classify(fmt.Errorf("release savepoint: %w", err))
	}
	return true, nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return classify(t.tx.Commit(ctx))
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return classify(err)
	}
	return nil
}

// buildInsertSQL constructs a single INSERT statement and its args for Postgres.
//
// It is pure and deterministic, so ON CONFLICT rendering and placeholder
// numbering are unit tested without a database.
//
// Constraints:
//   - every row must have len(spec.Columns) values.
//   - spec.Columns must be non-empty.
func buildInsertSQL(spec storage.InsertSpec) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualifiedIdent(spec.Table))
	b.WriteString(" (")
	b.WriteString(joinIdents(spec.Columns))
	b.WriteString(") VALUES ")

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
			b.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if spec.ConflictKey != "" {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(pgIdent(spec.ConflictKey))
		b.WriteString(")")
		if len(spec.UpdateColumns) == 0 {
			b.WriteString(" DO NOTHING")
		} else {
			b.WriteString(" DO UPDATE SET ")
			for i, c := range spec.UpdateColumns {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(pgIdent(c))
				b.WriteString(" = EXCLUDED.")
				b.WriteString(pgIdent(c))
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

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %w", storage.ErrConstraintViolation, err)
		case "42P01", "42703": // undefined_table, undefined_column
			return fmt.Errorf("%w: %w", storage.ErrSchemaMismatch, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", storage.ErrConnectionUnavailable, err)
	}
	return err
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// qualifiedIdent quotes a possibly schema-qualified table name.
func qualifiedIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

func joinIdents(cols []string) string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, pgIdent(c))
	}
	return strings.Join(out, ", ")
}

// splitQualifiedName splits a schema-qualified name into (schema, table).
//
// Examples:
//   - "public.client" => ("public", "client")
//   - "client"        => ("", "client")
//
// Only a single dot is handled; anything else is treated as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
