package multitable

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"tsmximport/internal/mapping"
	"tsmximport/internal/migrate"
	"tsmximport/internal/source"
	"tsmximport/internal/storage"
	"tsmximport/internal/storage/sqlite"
)

type fakeLogger struct {
	msgs []string
}

func (l *fakeLogger) Printf(format string, v ...any) {
	l.msgs = append(l.msgs, fmt.Sprintf(format, v...))
}

// newTestStore opens a private in-memory SQLite store with the import schema.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.New(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(st.Close)

	s := st.(*sqlite.Store)
	_, err = migrate.Up(ctx, s.DB(), "sqlite")
	require.NoError(t, err)
	return s
}

func rowSet(rows ...map[string]any) source.RowSet {
	rs := source.RowSet{Columns: source.Columns}
	for i, m := range rows {
		r := source.Row{V: make([]any, len(source.Columns)), Line: i + 2}
		for col, v := range m {
			r.V[rs.Index(col)] = v
		}
		rs.Rows = append(rs.Rows, r)
	}
	return rs
}

func count(t *testing.T, s *sqlite.Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}

func basicRow() map[string]any {
	return map[string]any{
		source.ColDocument:        "111.222.333-44",
		source.ColLegalName:       "ACME LTDA",
		source.ColPlanDescription: "Basic",
		source.ColPlanValue:       float64(50),
		source.ColState:           "São Paulo",
		source.ColPhone:           "999999999",
	}
}

func runEngine(t *testing.T, s storage.Store, opts Options, rs source.RowSet) Report {
	t.Helper()
	e := &Engine{Store: s, Logger: &fakeLogger{}, Options: opts}
	rep, err := e.Run(context.Background(), rs)
	require.NoError(t, err)
	return rep
}

func tableReport(t *testing.T, rep Report, table string) TableReport {
	t.Helper()
	tr, ok := rep.Table(table)
	require.True(t, ok, "no report for %s", table)
	return tr
}

func TestEngine_SingleRowOnEmptyStore(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	rep := runEngine(t, s, DefaultOptions(), rowSet(basicRow()))
	require.False(t, rep.Failed(), "report: %+v", rep)
	require.Equal(t, 1, rep.Rows)

	require.Equal(t, 1, count(t, s, mapping.TableClient))
	require.Equal(t, 1, count(t, s, mapping.TablePlan))
	require.Equal(t, 1, count(t, s, mapping.TableContract))
	require.Equal(t, 1, count(t, s, mapping.TableContact))

	var doc string
	require.NoError(t, s.DB().QueryRow(`SELECT document FROM client`).Scan(&doc))
	require.Equal(t, "111.222.333-44", doc)

	var desc string
	var value float64
	require.NoError(t, s.DB().QueryRow(`SELECT description, value FROM "plan"`).Scan(&desc, &value))
	require.Equal(t, "Basic", desc)
	require.InDelta(t, 50, value, 0.001)

	var state, postal, street string
	var statusID int64
	require.NoError(t, s.DB().QueryRow(`SELECT state, postal_code, street, status_id FROM contract`).Scan(&state, &postal, &street, &statusID))
	require.Equal(t, "SP", state)
	require.Equal(t, "00000-000", postal)
	require.Equal(t, "Não informado", street)
	require.EqualValues(t, 1, statusID)

	var ctype, cvalue string
	require.NoError(t, s.DB().QueryRow(
		`SELECT t.type, c.value FROM contact c JOIN contact_type_lookup t ON t.id = c.contact_type_id`).Scan(&ctype, &cvalue))
	require.Equal(t, mapping.ContactPhone, ctype)
	require.Equal(t, "999999999", cvalue)
}

func TestEngine_StatusFallbackSurvivesTruncate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	require.NoError(t, s.Truncate(ctx, mapping.Tables))

	rep := runEngine(t, s, DefaultOptions(), rowSet(basicRow()))
	require.False(t, rep.Failed())
	require.EqualValues(t, 1, tableReport(t, rep, mapping.TableContract).Written)

	var statusID int64
	var label string
	require.NoError(t, s.DB().QueryRow(
		`SELECT c.status_id, l.status FROM contract c JOIN status_lookup l ON l.id = c.status_id`).Scan(&statusID, &label))
	require.Equal(t, "Não informado", label)
	require.NotEqualValues(t, 1, statusID)
}

func TestEngine_ReRunWritesNoNewRows(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	rs := rowSet(basicRow())

	runEngine(t, s, DefaultOptions(), rs)
	rep := runEngine(t, s, DefaultOptions(), rs)
	require.False(t, rep.Failed(), "report: %+v", rep)

	for _, table := range []string{mapping.TableClient, mapping.TablePlan, mapping.TableContract, mapping.TableContact} {
		require.Equal(t, 1, count(t, s, table), table)
	}

	contract := tableReport(t, rep, mapping.TableContract)
	require.EqualValues(t, 0, contract.Written)
	require.Equal(t, 1, contract.Duplicates)

	contact := tableReport(t, rep, mapping.TableContact)
	require.EqualValues(t, 0, contact.Written)
	require.Equal(t, 1, contact.Duplicates)

	client := tableReport(t, rep, mapping.TableClient)
	require.NoError(t, client.Err)
}

func TestEngine_EmptyDocumentRowIsDropped(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	noDoc := basicRow()
	noDoc[source.ColDocument] = ""
	noDoc[source.ColPhone] = "955554444"

	rep := runEngine(t, s, DefaultOptions(), rowSet(noDoc, basicRow()))
	require.False(t, rep.Failed(), "report: %+v", rep)

	require.Equal(t, 1, count(t, s, mapping.TableClient))
	require.Equal(t, 1, count(t, s, mapping.TableContract))
	require.Equal(t, 1, count(t, s, mapping.TableContact))
	require.Equal(t, 1, tableReport(t, rep, mapping.TableClient).Dropped)
	require.Equal(t, 1, tableReport(t, rep, mapping.TableContact).Dropped)
}

func TestEngine_OrphansDroppedAndInBatchDuplicatesCollapsed(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	second := basicRow()
	second[source.ColPlanValue] = float64(70)
	second[source.ColEmail] = "ops@acme.example"
	noPlan := map[string]any{
		source.ColDocument: "555.666.777-88",
		source.ColPhone:    "911112222",
	}

	rep := runEngine(t, s, DefaultOptions(), rowSet(basicRow(), second, noPlan))
	require.False(t, rep.Failed(), "report: %+v", rep)

	require.Equal(t, 2, count(t, s, mapping.TableClient))
	require.Equal(t, 1, count(t, s, mapping.TableContract))
	require.Equal(t, 3, count(t, s, mapping.TableContact))

	var value float64
	require.NoError(t, s.DB().QueryRow(`SELECT value FROM "plan" WHERE description = 'Basic'`).Scan(&value))
	require.InDelta(t, 50, value, 0.001, "first price in the batch wins")

	contract := tableReport(t, rep, mapping.TableContract)
	require.Equal(t, 1, contract.Dropped)
	require.Equal(t, 1, contract.Duplicates)
}

func TestEngine_PlanConflictPolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		policy PlanConflict
		want   float64
	}{
		{name: "refresh", policy: PlanRefresh, want: 70},
		{name: "keep", policy: PlanKeep, want: 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestStore(t)
			opts := DefaultOptions()
			opts.PlanConflict = tc.policy

			runEngine(t, s, opts, rowSet(basicRow()))
			repriced := basicRow()
			repriced[source.ColPlanValue] = "R$ 70,00"
			runEngine(t, s, opts, rowSet(repriced))

			var value float64
			require.NoError(t, s.DB().QueryRow(`SELECT value FROM "plan"`).Scan(&value))
			require.InDelta(t, tc.want, value, 0.001)
			require.Equal(t, 1, count(t, s, mapping.TablePlan))
		})
	}
}

func TestEngine_PerRowContactsSkipUniqueViolations(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.DB().Exec(`CREATE UNIQUE INDEX contact_value_uq ON contact (value)`)
	require.NoError(t, err)

	other := basicRow()
	other[source.ColDocument] = "555.666.777-88"

	opts := DefaultOptions()
	opts.ContactPolicy = ContactPerRow
	rep := runEngine(t, s, opts, rowSet(basicRow(), other))
	require.False(t, rep.Failed(), "report: %+v", rep)

	contact := tableReport(t, rep, mapping.TableContact)
	require.EqualValues(t, 1, contact.Written)
	require.EqualValues(t, 1, contact.Skipped)
	require.Equal(t, 1, count(t, s, mapping.TableContact))
}

func TestEngine_BulkContactsRollBackOnUniqueViolation(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.DB().Exec(`CREATE UNIQUE INDEX contact_value_uq ON contact (value)`)
	require.NoError(t, err)

	other := basicRow()
	other[source.ColDocument] = "555.666.777-88"

	rep := runEngine(t, s, DefaultOptions(), rowSet(basicRow(), other))
	require.True(t, rep.Failed())

	contact := tableReport(t, rep, mapping.TableContact)
	require.ErrorIs(t, contact.Err, storage.ErrConstraintViolation)
	require.Equal(t, 0, count(t, s, mapping.TableContact))
	require.Equal(t, 2, count(t, s, mapping.TableContract), "earlier tables stay committed")
}

func TestEngine_MissingTableIsRecordedAndLaterTablesRun(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.DB().Exec(`DROP TABLE contract`)
	require.NoError(t, err)

	rep := runEngine(t, s, DefaultOptions(), rowSet(basicRow()))
	require.True(t, rep.Failed())

	require.ErrorIs(t, tableReport(t, rep, mapping.TableContract).Err, storage.ErrSchemaMismatch)
	require.NoError(t, tableReport(t, rep, mapping.TableContact).Err)
	require.Equal(t, 1, count(t, s, mapping.TableContact))
}

func TestEngine_RequiresStoreAndValidOptions(t *testing.T) {
	t.Parallel()

	_, err := (&Engine{}).Run(context.Background(), source.RowSet{})
	require.Error(t, err)

	s := newTestStore(t)
	_, err = (&Engine{Store: s, Options: Options{PlanConflict: "merge"}}).Run(context.Background(), source.RowSet{})
	require.Error(t, err)
}
