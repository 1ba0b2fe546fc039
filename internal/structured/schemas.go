package structured

// Field is one extractable value in a document-type schema.
type Field struct {
	Name        string
	Description string
}

// Document types the classifier may assign. DocTypeOther gets no structured
// extraction.
const (
	DocTypePolicy      = "policy"
	DocTypeClaim       = "claim"
	DocTypeInvoice     = "invoice"
	DocTypeEndorsement = "endorsement"
	DocTypeOther       = "other"
)

// schemas maps a document type to the fields worth extracting from it. Nil
// means the type carries no structured fields.
var schemas = map[string][]Field{
	DocTypePolicy: {
		{"policy_number", "the policy identifier, exactly as printed"},
		{"insured_name", "full name of the insured party"},
		{"effective_date", "coverage start date, ISO 8601"},
		{"expiration_date", "coverage end date, ISO 8601"},
		{"premium", "total premium amount as a number, no currency symbol"},
		{"deductible", "deductible amount as a number"},
	},
	DocTypeClaim: {
		{"claim_number", "the claim identifier, exactly as printed"},
		{"policy_number", "the related policy identifier"},
		{"loss_date", "date of loss, ISO 8601"},
		{"claim_amount", "claimed amount as a number"},
		{"claimant_name", "full name of the claimant"},
	},
	DocTypeInvoice: {
		{"invoice_number", "the invoice identifier"},
		{"issue_date", "invoice date, ISO 8601"},
		{"due_date", "payment due date, ISO 8601"},
		{"total", "total amount due as a number"},
		{"vendor_name", "name of the issuing party"},
	},
	DocTypeEndorsement: {
		{"endorsement_number", "the endorsement identifier"},
		{"policy_number", "the amended policy identifier"},
		{"effective_date", "date the amendment takes effect, ISO 8601"},
	},
}

// SchemaFor returns the field schema for a document type, or nil when the
// type has none.
func SchemaFor(docType string) []Field {
	return schemas[docType]
}

func knownTypes() []string {
	return []string{DocTypePolicy, DocTypeClaim, DocTypeInvoice, DocTypeEndorsement, DocTypeOther}
}
