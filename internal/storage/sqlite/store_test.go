package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tsmximport/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(st.Close)

	s := st.(*Store)
	ddl := []string{
		`CREATE TABLE plan (id INTEGER PRIMARY KEY AUTOINCREMENT, description TEXT NOT NULL UNIQUE, value NUMERIC)`,
		`CREATE TABLE contact (id INTEGER PRIMARY KEY AUTOINCREMENT, client_id INTEGER, contact_type_id INTEGER, value TEXT)`,
	}
	for _, q := range ddl {
		if _, err := s.db.Exec(q); err != nil {
			t.Fatalf("ddl %q: %v", q, err)
		}
	}
	return s
}

func insert(t *testing.T, s *Store, spec storage.InsertSpec) int64 {
	t.Helper()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := tx.Insert(ctx, spec)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return n
}

func TestStore_TableExistsAndColumnsOf(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.TableExists(ctx, "plan")
	if err != nil || !ok {
		t.Fatalf("TableExists(plan)=%v,%v want true,nil", ok, err)
	}
	ok, err = s.TableExists(ctx, "nope")
	if err != nil || ok {
		t.Fatalf("TableExists(nope)=%v,%v want false,nil", ok, err)
	}

	cols, err := s.ColumnsOf(ctx, "plan")
	if err != nil {
		t.Fatalf("ColumnsOf: %v", err)
	}
	for _, c := range []string{"id", "description", "value"} {
		if _, ok := cols[c]; !ok {
			t.Fatalf("ColumnsOf(plan) missing %q: %v", c, cols)
		}
	}
}

func TestStore_UpsertOnConflictKey(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	insert(t, s, storage.InsertSpec{
		Table:   "plan",
		Columns: []string{"description", "value"},
		Rows:    [][]any{{"Basic", 50}, {"Pro", 90}},
	})

	// Refresh price on conflict.
	insert(t, s, storage.InsertSpec{
		Table:         "plan",
		Columns:       []string{"description", "value"},
		Rows:          [][]any{{"Basic", 55}},
		ConflictKey:   "description",
		UpdateColumns: []string{"value"},
	})

	// Keep price on conflict.
	insert(t, s, storage.InsertSpec{
		Table:       "plan",
		Columns:     []string{"description", "value"},
		Rows:        [][]any{{"Pro", 1}},
		ConflictKey: "description",
	})

	rows, err := s.SelectRows(ctx, "plan", []string{"description", "value"})
	if err != nil {
		t.Fatalf("SelectRows: %v", err)
	}
	got := map[string]string{}
	for _, r := range rows {
		got[storage.NormalizeKey(r[0])] = storage.NormalizeKey(r[1])
	}
	if len(got) != 2 || got["Basic"] != "55" || got["Pro"] != "90" {
		t.Fatalf("plans=%v want Basic=55 Pro=90", got)
	}

	ids, err := s.SelectKeyValue(ctx, "plan", "description", "id")
	if err != nil {
		t.Fatalf("SelectKeyValue: %v", err)
	}
	if len(ids) != 2 || ids["Basic"] == 0 || ids["Pro"] == 0 {
		t.Fatalf("ids=%v", ids)
	}
}

func TestStore_InsertWithoutConflictKey_UniqueViolationIsClassified(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Insert(ctx, storage.InsertSpec{
		Table:   "plan",
		Columns: []string{"description"},
		Rows:    [][]any{{"Basic"}, {"Basic"}},
	})
	if !errors.Is(err, storage.ErrConstraintViolation) {
		t.Fatalf("err=%v want ErrConstraintViolation", err)
	}
}

func TestStore_InsertSkippingDuplicate(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var inserted, skipped int
	for _, d := range []string{"Basic", "Pro", "Basic", "Max"} {
		ok, err := tx.InsertSkippingDuplicate(ctx, "plan", []string{"description"}, []any{d})
		if err != nil {
			t.Fatalf("InsertSkippingDuplicate(%q): %v", d, err)
		}
		if ok {
			inserted++
		} else {
			skipped++
		}
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if inserted != 3 || skipped != 1 {
		t.Fatalf("inserted=%d skipped=%d want 3,1", inserted, skipped)
	}

	rows, err := s.SelectRows(ctx, "plan", []string{"description"})
	if err != nil {
		t.Fatalf("SelectRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d want 3", len(rows))
	}
}

func TestStore_Truncate(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	insert(t, s, storage.InsertSpec{Table: "plan", Columns: []string{"description"}, Rows: [][]any{{"Basic"}}})
	insert(t, s, storage.InsertSpec{Table: "contact", Columns: []string{"client_id", "value"}, Rows: [][]any{{1, "x"}}})

	if err := s.Truncate(ctx, []string{"plan", "contact"}); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	for _, table := range []string{"plan", "contact"} {
		rows, err := s.SelectRows(ctx, table, []string{"id"})
		if err != nil {
			t.Fatalf("SelectRows(%s): %v", table, err)
		}
		if len(rows) != 0 {
			t.Fatalf("%s has %d rows after truncate", table, len(rows))
		}
	}
}

func TestStore_MissingTableIsSchemaMismatch(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.SelectRows(context.Background(), "nope", []string{"id"})
	if !errors.Is(err, storage.ErrSchemaMismatch) {
		t.Fatalf("err=%v want ErrSchemaMismatch", err)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	q, args := buildInsertSQL(storage.InsertSpec{
		Table:         "client",
		Columns:       []string{"document", "legal_name"},
		Rows:          [][]any{{"a", "b"}, {"c", "d"}},
		ConflictKey:   "document",
		UpdateColumns: []string{"legal_name"},
	})
	if !strings.Contains(q, "VALUES (?, ?), (?, ?)") {
		t.Fatalf("unexpected placeholders: %q", q)
	}
	if !strings.HasSuffix(q, `ON CONFLICT ("document") DO UPDATE SET "legal_name" = excluded."legal_name"`) {
		t.Fatalf("unexpected conflict clause: %q", q)
	}
	if len(args) != 4 {
		t.Fatalf("args=%d want 4", len(args))
	}
}
