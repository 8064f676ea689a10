// Package mapping turns a cleaned spreadsheet into per-table candidate rows.
//
// Flow:
//
//	source.RowSet --Clean--> []Record --Statuses/ContactTypes/Plans/Clients--> lookup and parent rows
//	                                  --Contracts/Contacts(Lookups)------------> child rows with resolved ids
//
// Child rows whose client or plan cannot be resolved are dropped and counted,
// never emitted with a null foreign key.
package mapping

import (
	"time"

	"github.com/shopspring/decimal"

	"tsmximport/internal/normalize"
	"tsmximport/internal/source"
)

// Record is one spreadsheet row after field normalization.
type Record struct {
	Line int

	Document    string
	HasDocument bool

	LegalName        string
	TradeName        string
	BirthDate        time.Time // zero when missing or unparseable
	RegistrationDate time.Time

	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	PostalCode   string
	State        string

	PlanDescription string
	PlanValue       decimal.NullDecimal
	DueDay          int
	HasDueDay       bool
	Exempt          bool
	Status          string

	Phone  string
	Mobile string
	Email  string
}

// Contact returns the trimmed value of a contact channel.
func (r Record) Contact(kind string) string {
	switch kind {
	case ContactPhone:
		return r.Phone
	case ContactMobile:
		return r.Mobile
	case ContactEmail:
		return r.Email
	}
	return ""
}

// Clean normalizes every row of rs once.
func Clean(rs source.RowSet) []Record {
	out := make([]Record, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		get := func(col string) any { return rs.Get(row, col) }

		r := Record{
			Line:            row.Line,
			LegalName:       normalize.Text(get(source.ColLegalName)),
			TradeName:       normalize.Text(get(source.ColTradeName)),
			Street:          normalize.Street(get(source.ColStreet)),
			Number:          normalize.Number(get(source.ColNumber)),
			Complement:      normalize.Text(get(source.ColComplement)),
			Neighborhood:    normalize.Neighborhood(get(source.ColNeighborhood)),
			City:            normalize.City(get(source.ColCity)),
			PostalCode:      normalize.PostalCode(get(source.ColPostalCode)),
			State:           normalize.State(get(source.ColState)),
			PlanDescription: normalize.Text(get(source.ColPlanDescription)),
			Exempt:          normalize.Bool(get(source.ColExempt)),
			Status:          normalize.Text(get(source.ColStatus)),
			Phone:           normalize.Text(get(source.ColPhone)),
			Mobile:          normalize.Text(get(source.ColMobile)),
			Email:           normalize.Text(get(source.ColEmail)),
		}
		r.Document, r.HasDocument = normalize.Document(get(source.ColDocument))
		r.BirthDate, _ = normalize.Date(get(source.ColBirthDate))
		r.RegistrationDate, _ = normalize.Date(get(source.ColRegistrationDate))
		r.DueDay, r.HasDueDay = normalize.Int(get(source.ColDueDay))
		if v, ok := normalize.Money(get(source.ColPlanValue)); ok {
			r.PlanValue = decimal.NullDecimal{Decimal: v, Valid: true}
		}
		out = append(out, r)
	}
	return out
}
