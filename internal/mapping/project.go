package mapping

import (
	"time"

	"tsmximport/internal/dedupe"
	"tsmximport/internal/normalize"
	"tsmximport/internal/storage"
)

// Counts reports what a projection excluded.
//
// Dropped rows lacked a required key (no document, no plan description) or a
// required foreign key that did not resolve. Duplicates repeated a key already
// emitted earlier in the same batch (first occurrence wins).
type Counts struct {
	Dropped    int
	Duplicates int
}

// Lookups are the natural-key -> id maps read from the store after the parent
// tables are written. Keys are storage.NormalizeKey of the natural key.
type Lookups struct {
	Clients      map[string]int64 // document -> client.id
	Plans        map[string]int64 // description -> plan.id
	Statuses     map[string]int64 // label -> status_lookup.id
	ContactTypes map[string]int64 // type -> contact_type_lookup.id

	// StatusFallbackID is used when a row's status label is empty or unknown.
	// An id missing from Statuses resolves to the normalize.NotInformed row
	// instead. Zero writes a null status_id.
	StatusFallbackID int64
}

func (lk Lookups) statusID(label string) any {
	if id, ok := lookup(lk.Statuses, label); ok {
		return id
	}
	if lk.StatusFallbackID == 0 {
		return nil
	}
	for _, id := range lk.Statuses {
		if id == lk.StatusFallbackID {
			return id
		}
	}
	if id, ok := lookup(lk.Statuses, normalize.NotInformed); ok {
		return id
	}
	return nil
}

func lookup(m map[string]int64, key string) (int64, bool) {
	if key == "" {
		return 0, false
	}
	id, ok := m[storage.NormalizeKey(key)]
	return id, ok
}

// Statuses returns normalize.NotInformed followed by the distinct non-empty
// status labels in first-seen order. The seed row keeps a fallback status
// available after the table has been emptied.
func Statuses(records []Record) storage.RecordSet {
	out := storage.RecordSet{Columns: statusColumns, Rows: [][]any{{normalize.NotInformed}}}
	seen := map[string]struct{}{normalize.NotInformed: {}}
	for _, r := range records {
		if r.Status == "" {
			continue
		}
		if _, ok := seen[r.Status]; ok {
			continue
		}
		seen[r.Status] = struct{}{}
		out.Rows = append(out.Rows, []any{r.Status})
	}
	return out
}

// ContactTypes returns the fixed contact type seed rows.
func ContactTypes() storage.RecordSet {
	out := storage.RecordSet{Columns: typeColumns}
	for _, k := range ContactKinds {
		out.Rows = append(out.Rows, []any{k})
	}
	return out
}

// Plans projects one row per distinct plan description. When a description
// repeats with a different price, the first row's price wins.
func Plans(records []Record) (storage.RecordSet, Counts) {
	out := storage.RecordSet{Columns: planColumns}
	var c Counts
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.PlanDescription == "" {
			c.Dropped++
			continue
		}
		if _, ok := seen[r.PlanDescription]; ok {
			c.Duplicates++
			continue
		}
		seen[r.PlanDescription] = struct{}{}

		var value any
		if r.PlanValue.Valid {
			value = r.PlanValue.Decimal
		}
		out.Rows = append(out.Rows, []any{r.PlanDescription, value})
	}
	return out, c
}

// Clients projects one row per normalized document; rows with no document are
// dropped, and the first row per document wins.
func Clients(records []Record) (storage.RecordSet, Counts) {
	out := storage.RecordSet{Columns: clientColumns}
	var c Counts
	seen := make(map[string]struct{})
	for _, r := range records {
		if !r.HasDocument {
			c.Dropped++
			continue
		}
		if _, ok := seen[r.Document]; ok {
			c.Duplicates++
			continue
		}
		seen[r.Document] = struct{}{}
		out.Rows = append(out.Rows, []any{
			r.Document, nullString(r.LegalName), nullString(r.TradeName),
			nullDate(r.BirthDate), nullDate(r.RegistrationDate),
		})
	}
	return out, c
}

// Contracts projects one contract per (client, plan), resolving both through
// lk. Rows whose client or plan does not resolve are dropped.
func Contracts(records []Record, lk Lookups) (storage.RecordSet, Counts) {
	out := storage.RecordSet{Columns: contractColumns}
	var c Counts
	seen := make(dedupe.KeySet)
	for _, r := range records {
		clientID, ok := lookup(lk.Clients, r.Document)
		if !r.HasDocument || !ok {
			c.Dropped++
			continue
		}
		planID, ok := lookup(lk.Plans, r.PlanDescription)
		if !ok {
			c.Dropped++
			continue
		}

		k := dedupe.Key(clientID, planID)
		if seen.Has(k) {
			c.Duplicates++
			continue
		}
		seen.Add(k)

		var dueDay any
		if r.HasDueDay {
			dueDay = r.DueDay
		}
		out.Rows = append(out.Rows, []any{
			clientID, planID, dueDay, r.Exempt,
			r.Street, r.Number, nullString(r.Complement), r.Neighborhood, r.City, r.PostalCode, r.State,
			lk.statusID(r.Status),
		})
	}
	return out, c
}

// Contacts expands each row into one contact per non-empty channel (phone,
// mobile, email). Contacts whose client or type does not resolve are dropped.
func Contacts(records []Record, lk Lookups) (storage.RecordSet, Counts) {
	out := storage.RecordSet{Columns: contactColumns}
	var c Counts
	seen := make(dedupe.KeySet)
	for _, r := range records {
		clientID, clientOK := lookup(lk.Clients, r.Document)
		for _, kind := range ContactKinds {
			v := r.Contact(kind)
			if v == "" {
				continue
			}
			typeID, typeOK := lookup(lk.ContactTypes, kind)
			if !r.HasDocument || !clientOK || !typeOK {
				c.Dropped++
				continue
			}

			k := dedupe.Key(clientID, typeID, v)
			if seen.Has(k) {
				c.Duplicates++
				continue
			}
			seen.Add(k)
			out.Rows = append(out.Rows, []any{clientID, typeID, v})
		}
	}
	return out, c
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
