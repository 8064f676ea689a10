package source

import (
	"strings"

	"tsmximport/internal/normalize"
)

// Canonical column names, in spreadsheet order.
const (
	ColLegalName        = "legal_name"
	ColTradeName        = "trade_name"
	ColDocument         = "document"
	ColBirthDate        = "birth_date"
	ColRegistrationDate = "registration_date"
	ColStreet           = "street"
	ColNumber           = "number"
	ColComplement       = "complement"
	ColNeighborhood     = "neighborhood"
	ColCity             = "city"
	ColPostalCode       = "postal_code"
	ColState            = "state"
	ColPlanDescription  = "plan_description"
	ColDueDay           = "due_day"
	ColExempt           = "exempt"
	ColPlanValue        = "plan_value"
	ColStatus           = "status"
	ColPhone            = "phone"
	ColEmail            = "email"
	ColMobile           = "mobile"
)

// Columns is the full expected header set.
var Columns = []string{
	ColLegalName, ColTradeName, ColDocument, ColBirthDate, ColRegistrationDate,
	ColStreet, ColNumber, ColComplement, ColNeighborhood, ColCity, ColPostalCode, ColState,
	ColPlanDescription, ColDueDay, ColExempt, ColPlanValue, ColStatus,
	ColPhone, ColEmail, ColMobile,
}

// spreadsheetHeaders maps the headers of the customer export to Columns.
var spreadsheetHeaders = map[string]string{
	"Nome/Razão Social":     ColLegalName,
	"Razão Social":          ColLegalName,
	"Nome":                  ColLegalName,
	"Nome Fantasia":         ColTradeName,
	"CPF/CNPJ":              ColDocument,
	"Documento":             ColDocument,
	"Data Nasc.":            ColBirthDate,
	"Data Nascimento":       ColBirthDate,
	"Data Cadastro cliente": ColRegistrationDate,
	"Data Cadastro":         ColRegistrationDate,
	"Logradouro":            ColStreet,
	"Endereço":              ColStreet,
	"Número":                ColNumber,
	"Complemento":           ColComplement,
	"Bairro":                ColNeighborhood,
	"Cidade":                ColCity,
	"CEP":                   ColPostalCode,
	"Estado":                ColState,
	"UF":                    ColState,
	"Plano":                 ColPlanDescription,
	"Vencimento":            ColDueDay,
	"Isento":                ColExempt,
	"Plano Valor":           ColPlanValue,
	"Valor":                 ColPlanValue,
	"Status":                ColStatus,
	"Telefones":             ColPhone,
	"Telefone":              ColPhone,
	"Emails":                ColEmail,
	"E-mail":                ColEmail,
	"E-mails":               ColEmail,
	"Celulares":             ColMobile,
	"Celular":               ColMobile,
}

var (
	foldedHeaders = make(map[string]string, len(spreadsheetHeaders))
	canonical     = make(map[string]struct{}, len(Columns))
)

func init() {
	for h, c := range spreadsheetHeaders {
		foldedHeaders[normalize.FoldKey(h)] = c
	}
	for _, c := range Columns {
		canonical[c] = struct{}{}
	}
}

// canonicalHeader resolves a source header to a canonical column.
//
// Order: exact match in extra, accent/case-folded match against the built-in
// header map, then the header itself lowercased with spaces as underscores
// (so files already using canonical names load as-is).
func canonicalHeader(h string, extra map[string]string) (string, bool) {
	h = strings.TrimSpace(h)
	if h == "" {
		return "", false
	}
	if mapped, ok := extra[h]; ok {
		return mapped, true
	}
	if mapped, ok := foldedHeaders[normalize.FoldKey(h)]; ok {
		return mapped, true
	}
	snake := strings.ReplaceAll(strings.ToLower(h), " ", "_")
	if _, ok := canonical[snake]; ok {
		return snake, true
	}
	return "", false
}
