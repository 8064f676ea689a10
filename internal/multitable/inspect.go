package multitable

import (
	"tsmximport/internal/mapping"
	"tsmximport/internal/source"
	"tsmximport/internal/storage"
)

// Inspection is an offline dry run of one sheet: what each table would
// receive against an empty database.
type Inspection struct {
	Rows     int
	Mapped   []string // canonical columns with at least one value
	Unmapped []string // source headers that matched no column
	Tables   []TableReport
}

// Inspect projects rs into every table without touching a store.
//
// Parent ids are synthesized from the batch itself so child projections
// report the same drops and in-batch duplicates a first import would.
// Rows already present in a real database are not considered.
func Inspect(rs source.RowSet) Inspection {
	records := mapping.Clean(rs)
	out := Inspection{Rows: len(records), Unmapped: rs.Unmapped, Mapped: mappedColumns(rs)}

	add := func(table string, set storage.RecordSet, c mapping.Counts) {
		out.Tables = append(out.Tables, TableReport{
			Table:      table,
			Candidates: len(set.Rows),
			Dropped:    c.Dropped,
			Duplicates: c.Duplicates,
		})
	}

	statuses := mapping.Statuses(records)
	add(mapping.TableStatus, statuses, mapping.Counts{})
	types := mapping.ContactTypes()
	add(mapping.TableContactType, types, mapping.Counts{})
	plans, pc := mapping.Plans(records)
	add(mapping.TablePlan, plans, pc)
	clients, cc := mapping.Clients(records)
	add(mapping.TableClient, clients, cc)

	lk := mapping.Lookups{
		Statuses:     syntheticIDs(statuses),
		ContactTypes: syntheticIDs(types),
		Plans:        syntheticIDs(plans),
		Clients:      syntheticIDs(clients),
	}
	contracts, kc := mapping.Contracts(records, lk)
	add(mapping.TableContract, contracts, kc)
	contacts, tc := mapping.Contacts(records, lk)
	add(mapping.TableContact, contacts, tc)

	return out
}

// syntheticIDs numbers the first column of set from 1, keyed the way
// loadLookups keys ids read back from the store.
func syntheticIDs(set storage.RecordSet) map[string]int64 {
	m := make(map[string]int64, len(set.Rows))
	for i, row := range set.Rows {
		if s, ok := row[0].(string); ok {
			m[storage.NormalizeKey(s)] = int64(i + 1)
		}
	}
	return m
}

func mappedColumns(rs source.RowSet) []string {
	var out []string
	for i, col := range rs.Columns {
		for _, row := range rs.Rows {
			if i < len(row.V) && row.V[i] != nil {
				out = append(out, col)
				break
			}
		}
	}
	return out
}
