package mapping

// Target tables, in dependency order (parents first).
const (
	TableStatus      = "status_lookup"
	TableContactType = "contact_type_lookup"
	TablePlan        = "plan"
	TableClient      = "client"
	TableContract    = "contract"
	TableContact     = "contact"
)

// Tables lists every target table in dependency order.
var Tables = []string{TableStatus, TableContactType, TablePlan, TableClient, TableContract, TableContact}

// Column names shared by the projections, the lookups and the snapshots.
const (
	ColID = "id"

	ColStatus = "status"
	ColType   = "type"

	ColDescription = "description"
	ColValue       = "value"

	ColDocument         = "document"
	ColLegalName        = "legal_name"
	ColTradeName        = "trade_name"
	ColBirthDate        = "birth_date"
	ColRegistrationDate = "registration_date"

	ColClientID      = "client_id"
	ColPlanID        = "plan_id"
	ColDueDay        = "due_day"
	ColExempt        = "exempt"
	ColStreet        = "street"
	ColNumber        = "number"
	ColComplement    = "complement"
	ColNeighborhood  = "neighborhood"
	ColCity          = "city"
	ColPostalCode    = "postal_code"
	ColState         = "state"
	ColStatusID      = "status_id"
	ColContactTypeID = "contact_type_id"
)

// Contact type labels seeded into contact_type_lookup.
const (
	ContactPhone  = "phone"
	ContactMobile = "mobile"
	ContactEmail  = "email"
)

// ContactKinds is the fixed channel order used when expanding contacts.
var ContactKinds = []string{ContactPhone, ContactMobile, ContactEmail}

var (
	statusColumns   = []string{ColStatus}
	typeColumns     = []string{ColType}
	planColumns     = []string{ColDescription, ColValue}
	clientColumns   = []string{ColDocument, ColLegalName, ColTradeName, ColBirthDate, ColRegistrationDate}
	contractColumns = []string{
		ColClientID, ColPlanID, ColDueDay, ColExempt,
		ColStreet, ColNumber, ColComplement, ColNeighborhood, ColCity, ColPostalCode, ColState,
		ColStatusID,
	}
	contactColumns = []string{ColClientID, ColContactTypeID, ColValue}
)

// ContractKey and ContactKey are the composite business keys the store does
// not enforce.
var (
	ContractKey = []string{ColClientID, ColPlanID}
	ContactKey  = []string{ColClientID, ColContactTypeID, ColValue}
)
