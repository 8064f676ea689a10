package multitable

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"tsmximport/internal/storage"
)

func TestResolveColumns_DropsUnknownAndLowercases(t *testing.T) {
	t.Parallel()

	live := storage.LowerSet([]string{"id", "description", "value"})
	src, lower := resolveColumns([]string{"Description", "bogus", "VALUE", "description"}, live)
	if !reflect.DeepEqual(src, []string{"Description", "VALUE"}) {
		t.Fatalf("source=%v", src)
	}
	if !reflect.DeepEqual(lower, []string{"description", "value"}) {
		t.Fatalf("lower=%v", lower)
	}
}

func TestUpdateColumns(t *testing.T) {
	t.Parallel()

	cols := []string{"document", "legal_name", "trade_name"}
	tests := []struct {
		name     string
		explicit []string
		want     []string
	}{
		{name: "nil means all but key", explicit: nil, want: []string{"legal_name", "trade_name"}},
		{name: "empty means none", explicit: []string{}, want: []string{}},
		{name: "intersected", explicit: []string{"TRADE_NAME", "missing", "document"}, want: []string{"trade_name"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := updateColumns(cols, "document", tt.explicit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("updateColumns=%v want %v", got, tt.want)
			}
		})
	}
}

func TestExecutor_SchemaMismatchWritesNothing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	x := &Executor{Store: s}
	ctx := context.Background()

	_, err := x.Write(ctx, WriteRequest{
		Table:   "no_such_table",
		Records: storage.RecordSet{Columns: []string{"a"}, Rows: [][]any{{1}}},
	})
	require.ErrorIs(t, err, storage.ErrSchemaMismatch)

	_, err = x.Write(ctx, WriteRequest{
		Table:   "plan",
		Records: storage.RecordSet{Columns: []string{"price", "label"}, Rows: [][]any{{1, "x"}}},
	})
	require.ErrorIs(t, err, storage.ErrSchemaMismatch)

	_, err = x.Write(ctx, WriteRequest{
		Table:       "plan",
		Records:     storage.RecordSet{Columns: []string{"description"}, Rows: [][]any{{"x"}}},
		ConflictKey: "code",
		Policy:      UpsertOnKey,
	})
	require.ErrorIs(t, err, storage.ErrSchemaMismatch)

	require.Equal(t, 0, count(t, s, "plan"))
}

func TestExecutor_DropsUnknownColumnsAndUpserts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	x := &Executor{Store: s, Logger: &fakeLogger{}}
	ctx := context.Background()

	res, err := x.Write(ctx, WriteRequest{
		Table: "plan",
		Records: storage.RecordSet{
			Columns: []string{"Description", "value", "legacy_code"},
			Rows:    [][]any{{"Basic", 50, "B1"}, {"Pro", 90, "P1"}},
		},
		ConflictKey: "description",
		Policy:      UpsertOnKey,
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, res.Written)

	_, err = x.Write(ctx, WriteRequest{
		Table:       "plan",
		Records:     storage.RecordSet{Columns: []string{"description", "value"}, Rows: [][]any{{"Basic", 55}}},
		ConflictKey: "description",
		Policy:      UpsertOnKey,
	})
	require.NoError(t, err)

	var value int
	require.NoError(t, s.DB().QueryRow(`SELECT value FROM "plan" WHERE description = 'Basic'`).Scan(&value))
	require.Equal(t, 55, value)
	require.Equal(t, 2, count(t, s, "plan"))
}

func TestExecutor_RejectBatchRollsBackWholeCall(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	x := &Executor{Store: s}
	ctx := context.Background()

	_, err := x.Write(ctx, WriteRequest{
		Table: "plan",
		Records: storage.RecordSet{
			Columns: []string{"description"},
			Rows:    [][]any{{"A"}, {"B"}, {"A"}},
		},
		Policy: RejectBatchOnError,
	})
	require.ErrorIs(t, err, storage.ErrConstraintViolation)
	require.Equal(t, 0, count(t, s, "plan"))
}

func TestExecutor_SkipPerRowContinuesPastViolations(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	x := &Executor{Store: s}

	res, err := x.Write(context.Background(), WriteRequest{
		Table: "plan",
		Records: storage.RecordSet{
			Columns: []string{"description"},
			Rows:    [][]any{{"A"}, {"B"}, {"A"}, {"C"}},
		},
		Policy: SkipOnUniqueViolationPerRow,
	})
	require.NoError(t, err)
	require.Equal(t, WriteResult{Written: 3, Skipped: 1}, res)
	require.Equal(t, 3, count(t, s, "plan"))
}

func TestExecutor_EmptyRecordSetIsNoop(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	x := &Executor{Store: s}

	res, err := x.Write(context.Background(), WriteRequest{
		Table:   "plan",
		Records: storage.RecordSet{Columns: []string{"description"}},
	})
	require.NoError(t, err)
	require.Equal(t, WriteResult{}, res)
}
